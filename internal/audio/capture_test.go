package audio

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type sourceMock struct {
	mu       sync.Mutex
	frames   chan []float32
	startErr error
	starts   int
	stops    int
}

func newSourceMock() *sourceMock {
	return &sourceMock{frames: make(chan []float32, 16)}
}

func (s *sourceMock) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	s.frames = make(chan []float32, 16)
	return nil
}

func (s *sourceMock) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	close(s.frames)
	return nil
}

func (s *sourceMock) ReadFrame() ([]float32, error) {
	s.mu.Lock()
	ch := s.frames
	s.mu.Unlock()

	frame, ok := <-ch
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

type sinkRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *sinkRecorder) sink(pcm []byte) {
	r.mu.Lock()
	r.frames = append(r.frames, pcm)
	r.mu.Unlock()
}

func (r *sinkRecorder) waitFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		if len(r.frames) >= n {
			out := append([][]byte(nil), r.frames...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCaptureEncodesFrames(t *testing.T) {
	source := newSourceMock()
	rec := &sinkRecorder{}
	capture := NewCapture(zap.NewNop().Sugar(), source, rec.sink)

	if err := capture.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source.frames <- []float32{0.5, -0.5}
	frames := rec.waitFrames(t, 1)

	got := int16(frames[0][0]) | int16(frames[0][1])<<8
	if got != 16384 {
		t.Errorf("expected encoded 16384, got %d", got)
	}

	capture.Stop()
}

func TestCaptureAcquisitionFailureIsTerminal(t *testing.T) {
	source := newSourceMock()
	source.startErr = errors.New("permission denied")
	capture := NewCapture(zap.NewNop().Sugar(), source, func([]byte) {})

	if err := capture.Start(); err == nil {
		t.Fatal("expected Start to fail")
	}
	if source.starts != 0 {
		t.Fatalf("expected no successful source start, got %d", source.starts)
	}
}

func TestCaptureMuteTransmitsSilence(t *testing.T) {
	source := newSourceMock()
	rec := &sinkRecorder{}
	capture := NewCapture(zap.NewNop().Sugar(), source, rec.sink)

	if err := capture.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer capture.Stop()

	capture.SetMuted(true)
	source.frames <- []float32{0.9, 0.9, 0.9}
	frames := rec.waitFrames(t, 1)

	if len(frames[0]) != 6 {
		t.Fatalf("expected muted frame of 6 bytes, got %d", len(frames[0]))
	}
	for i, b := range frames[0] {
		if b != 0 {
			t.Fatalf("muted frame byte %d: expected silence, got %d", i, b)
		}
	}
}

func TestCaptureRestartReacquiresSource(t *testing.T) {
	source := newSourceMock()
	capture := NewCapture(zap.NewNop().Sugar(), source, func([]byte) {})

	if err := capture.Start(); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	capture.Stop()

	if source.stops != 1 {
		t.Fatalf("expected source released once, got %d", source.stops)
	}

	if err := capture.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	capture.Stop()

	if source.starts != 2 {
		t.Fatalf("expected source acquired twice, got %d", source.starts)
	}
}
