package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Speaker is a PortAudio-backed output for the playback queue. Play blocks
// until the chunk has been written to the device, which gives the queue its
// one-chunk-at-a-time guarantee.
type Speaker struct {
	stream *portaudio.Stream
	buf    []float32
}

// NewSpeaker opens and starts a mono output stream at the given sample rate.
func NewSpeaker(sampleRate, framesPerBuffer int) (*Speaker, error) {
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return &Speaker{stream: stream, buf: buf}, nil
}

// Play writes the chunk to the device in buffer-sized blocks, zero-padding
// the final partial block.
func (s *Speaker) Play(samples []float32) error {
	for off := 0; off < len(samples); off += len(s.buf) {
		n := copy(s.buf, samples[off:])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

func (s *Speaker) Close() error {
	if err := s.stream.Stop(); err != nil {
		_ = s.stream.Close()
		return err
	}
	return s.stream.Close()
}
