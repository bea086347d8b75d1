// Package playback buffers decoded audio chunks arriving from the network
// and plays them strictly in arrival order, one at a time, with no gap
// between a chunk finishing and the next one starting.
package playback

import (
	"sync"

	"go.uber.org/zap"
)

// Player renders one chunk of normalized samples. Play blocks until the
// chunk has finished playing.
type Player interface {
	Play(samples []float32) error
}

// Queue serializes playback of inbound chunks. Enqueueing while idle starts
// playback immediately; enqueueing while a chunk is playing appends to the
// pending list, which drains back-to-back as each chunk completes.
type Queue struct {
	log    *zap.SugaredLogger
	player Player

	mu      sync.Mutex
	pending [][]float32
	playing bool
	closed  bool
}

func NewQueue(log *zap.SugaredLogger, player Player) *Queue {
	return &Queue{log: log, player: player}
}

// Enqueue adds a chunk for playback. Chunks enqueued after Close are
// discarded.
func (q *Queue) Enqueue(samples []float32) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	q.pending = append(q.pending, samples)
	if q.playing {
		q.mu.Unlock()
		return
	}

	q.playing = true
	q.mu.Unlock()

	go q.drain()
}

// drain plays pending chunks in order until the queue is empty or closed.
// Exactly one drain goroutine runs at a time, guarded by the playing flag.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.playing = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := q.player.Play(next); err != nil {
			q.log.Errorw("chunk playback failed", "error", err)
		}
	}
}

// Close tears the queue down unconditionally: pending chunks are discarded
// and the playing flag clears once any in-flight chunk returns. Further
// enqueues are no-ops.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
}

// Idle reports whether nothing is playing and nothing is pending.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing && len(q.pending) == 0
}
