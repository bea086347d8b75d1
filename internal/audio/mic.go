package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Mic is a PortAudio-backed capture Source producing normalized float32
// frames. Initialize/Terminate of the PortAudio library is the caller's
// responsibility (once per process).
type Mic struct {
	stream *portaudio.Stream
	buf    []float32
}

// NewMic opens a mono capture stream at the given sample rate with
// framesPerBuffer samples per frame.
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("open default stream: %w", err)
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error { return m.stream.Start() }

// Stop halts and releases the underlying stream so a later session can
// reacquire the device.
func (m *Mic) Stop() error {
	if err := m.stream.Stop(); err != nil {
		return err
	}
	return m.stream.Close()
}

// ReadFrame blocks until one frame of samples is available. The returned
// slice is only valid until the next call.
func (m *Mic) ReadFrame() ([]float32, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	return m.buf, nil
}
