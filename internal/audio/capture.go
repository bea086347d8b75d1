package audio

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Source is a live audio input producing normalized float32 frames.
type Source interface {
	Start() error
	Stop() error
	ReadFrame() ([]float32, error)
}

// FrameSink receives encoded PCM16 frames in capture order.
type FrameSink func(pcm []byte)

// Capture runs the outbound half of the audio pipeline: it reads frames from
// a Source, encodes them as PCM16 and hands them to the sink. It is
// restartable — Stop releases the source so a later Start can reacquire it.
type Capture struct {
	log    *zap.SugaredLogger
	source Source
	sink   FrameSink

	mu      sync.Mutex
	running bool
	muted   bool
	done    chan struct{}
}

func NewCapture(log *zap.SugaredLogger, source Source, sink FrameSink) *Capture {
	return &Capture{log: log, source: source, sink: sink}
}

// Start acquires the source and begins streaming frames to the sink.
// Acquisition failure is terminal: the error is returned once and capture
// never starts. Starting an already-running capture is an error.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("capture already running")
	}

	if err := c.source.Start(); err != nil {
		return fmt.Errorf("acquire audio source: %w", err)
	}

	c.running = true
	c.done = make(chan struct{})
	go c.run(c.done)

	c.log.Infow("audio capture started", "sample_rate", SampleRate, "frame_samples", FrameSamples)
	return nil
}

// Stop halts the capture loop and releases the source. It blocks until the
// loop has exited. Safe to call when not running.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	done := c.done
	if err := c.source.Stop(); err != nil {
		c.log.Warnw("audio source stop", "error", err)
	}
	c.mu.Unlock()

	<-done
	c.log.Info("audio capture stopped")
}

// SetMuted silences capture at the source: the loop keeps encoding and
// sending frames, but their samples are zeroed. This keeps the outbound
// stream alive so the transport never has to renegotiate.
func (c *Capture) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

func (c *Capture) run(done chan struct{}) {
	defer close(done)

	for {
		frame, err := c.source.ReadFrame()
		if err != nil {
			c.mu.Lock()
			running := c.running
			c.running = false
			c.mu.Unlock()
			if running {
				// Not a Stop-initiated exit, the device failed underneath us.
				c.log.Errorw("audio source read failed", "error", err)
			}
			return
		}

		c.mu.Lock()
		muted := c.muted
		running := c.running
		c.mu.Unlock()
		if !running {
			return
		}

		if muted {
			c.sink(make([]byte, len(frame)*2))
			continue
		}
		c.sink(EncodePCM16(frame))
	}
}
