package playback

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// playerMock records chunks and simulates each one taking its configured
// duration to play. overlapping is set if Play is entered while another
// Play is still in progress.
type playerMock struct {
	mu          sync.Mutex
	played      [][]float32
	inPlay      bool
	overlapping bool
	delay       func(chunk []float32) time.Duration
}

func (p *playerMock) Play(samples []float32) error {
	p.mu.Lock()
	if p.inPlay {
		p.overlapping = true
	}
	p.inPlay = true
	d := time.Duration(0)
	if p.delay != nil {
		d = p.delay(samples)
	}
	p.mu.Unlock()

	time.Sleep(d)

	p.mu.Lock()
	p.played = append(p.played, samples)
	p.inPlay = false
	p.mu.Unlock()
	return nil
}

func (p *playerMock) snapshot() [][]float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]float32(nil), p.played...)
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !q.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("queue never went idle")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueuePlaysInArrivalOrder(t *testing.T) {
	player := &playerMock{}
	q := NewQueue(zap.NewNop().Sugar(), player)

	chunks := [][]float32{{1}, {2}, {3}, {4}, {5}}
	for _, c := range chunks {
		q.Enqueue(c)
	}
	waitIdle(t, q)

	played := player.snapshot()
	if len(played) != len(chunks) {
		t.Fatalf("expected %d chunks played, got %d", len(chunks), len(played))
	}
	for i := range chunks {
		if played[i][0] != chunks[i][0] {
			t.Fatalf("chunk %d: expected %v, got %v", i, chunks[i][0], played[i][0])
		}
	}
	if player.overlapping {
		t.Fatal("chunks overlapped")
	}
}

func TestQueueBackToBackArrivalDuringPlayback(t *testing.T) {
	// C1 takes 100ms, C2 80ms; C2 arrives before C1 finishes. C1 must play
	// fully, then C2 starts immediately with no overlap.
	player := &playerMock{delay: func(chunk []float32) time.Duration {
		if chunk[0] == 1 {
			return 100 * time.Millisecond
		}
		return 80 * time.Millisecond
	}}
	q := NewQueue(zap.NewNop().Sugar(), player)

	q.Enqueue([]float32{1})
	q.Enqueue([]float32{2})
	waitIdle(t, q)

	played := player.snapshot()
	if len(played) != 2 {
		t.Fatalf("expected 2 chunks played, got %d", len(played))
	}
	if played[0][0] != 1 || played[1][0] != 2 {
		t.Fatalf("expected order [1 2], got [%v %v]", played[0][0], played[1][0])
	}
	if player.overlapping {
		t.Fatal("chunks overlapped")
	}
}

func TestQueueCloseDiscardsPending(t *testing.T) {
	player := &playerMock{delay: func([]float32) time.Duration { return 50 * time.Millisecond }}
	q := NewQueue(zap.NewNop().Sugar(), player)

	q.Enqueue([]float32{1})
	q.Enqueue([]float32{2})
	q.Enqueue([]float32{3})
	q.Enqueue([]float32{4})

	// Tear down mid-queue with chunks still pending.
	time.Sleep(10 * time.Millisecond)
	q.Close()

	// Stray chunk after teardown must be ignored.
	q.Enqueue([]float32{5})

	waitIdle(t, q)
	played := player.snapshot()
	if len(played) > 1 {
		t.Fatalf("expected at most the in-flight chunk to finish, got %d", len(played))
	}
	if !q.Idle() {
		t.Fatal("expected queue idle after close")
	}
}

func TestQueueIdleAfterDrainThenRestarts(t *testing.T) {
	player := &playerMock{}
	q := NewQueue(zap.NewNop().Sugar(), player)

	q.Enqueue([]float32{1})
	waitIdle(t, q)

	q.Enqueue([]float32{2})
	waitIdle(t, q)

	played := player.snapshot()
	if len(played) != 2 {
		t.Fatalf("expected 2 chunks played, got %d", len(played))
	}
}
