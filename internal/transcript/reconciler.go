// Package transcript merges the two transcript sources: low-latency interim
// hypotheses from the control channel, overwritten in place, and
// authoritative final entries from the transcript channel, deduplicated into
// an append-only log. The same final utterance may arrive on both channels;
// the accepted-ID set absorbs the duplicate rather than treating it as an
// error.
package transcript

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives the reconciled view of the conversation.
type Sink interface {
	AppendEntry(e Entry)
	SetInterim(speaker, text string)
	ClearInterim(speaker string)
	ShowSuggestions(suggestions []string)
	HideSuggestions()
}

// Reconciler holds the transcript state for one session.
type Reconciler struct {
	log         *zap.SugaredLogger
	sink        Sink
	suggestions []string
	delay       time.Duration
	now         func() time.Time

	mu               sync.Mutex
	seen             map[string]struct{}
	entries          []Entry
	interim          map[string]string
	userFinalSeen    bool
	suggestionsFired bool
	timer            *time.Timer
	closed           bool
}

// NewReconciler creates a reconciler that presents the given quick-reply
// suggestions once, delay after the first accepted agent final, as long as
// no user final has been accepted yet.
func NewReconciler(log *zap.SugaredLogger, sink Sink, suggestions []string, delay time.Duration) *Reconciler {
	return &Reconciler{
		log:         log,
		sink:        sink,
		suggestions: suggestions,
		delay:       delay,
		now:         time.Now,
		seen:        make(map[string]struct{}),
		interim:     make(map[string]string),
	}
}

// SetInterim records the live hypothesis for a speaker, replacing any prior
// one wholesale.
func (r *Reconciler) SetInterim(speaker, text string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.interim[speaker] = text
	r.mu.Unlock()

	r.sink.SetInterim(speaker, text)
}

// ClearInterim drops the live hypothesis for a speaker. The control channel
// signals this with a final-flagged transcript event; the entry itself
// arrives on the transcript channel.
func (r *Reconciler) ClearInterim(speaker string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.interim, speaker)
	r.mu.Unlock()

	r.sink.ClearInterim(speaker)
}

// AcceptFinal runs a final entry through the dedup set. A repeated ID is
// dropped silently and (Entry{}, false) returned. An accepted entry is
// appended to the log, clears the speaker's interim atomically with
// acceptance, and drives the one-shot suggestion behavior.
func (r *Reconciler) AcceptFinal(id, speaker, text string) (Entry, bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Entry{}, false
	}

	if id == "" {
		id = fmt.Sprintf("%s-%d", speaker, r.now().UnixMilli())
	}

	if _, dup := r.seen[id]; dup {
		r.mu.Unlock()
		r.log.Debugw("duplicate transcript entry dropped", "id", id)
		return Entry{}, false
	}
	r.seen[id] = struct{}{}

	entry := Entry{ID: id, Speaker: speaker, Text: text, Timestamp: r.now().UTC()}
	r.entries = append(r.entries, entry)
	delete(r.interim, speaker)

	var schedule, withdraw bool
	switch speaker {
	case "agent":
		if !r.userFinalSeen && !r.suggestionsFired && len(r.suggestions) > 0 {
			r.suggestionsFired = true
			schedule = true
		}
	case "user":
		r.userFinalSeen = true
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		withdraw = true
	}
	if schedule {
		r.timer = time.AfterFunc(r.delay, r.presentSuggestions)
	}
	r.mu.Unlock()

	r.sink.ClearInterim(speaker)
	r.sink.AppendEntry(entry)
	if withdraw {
		r.sink.HideSuggestions()
	}

	return entry, true
}

func (r *Reconciler) presentSuggestions() {
	r.mu.Lock()
	if r.closed || r.userFinalSeen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	suggestions := r.suggestions
	r.mu.Unlock()

	r.sink.ShowSuggestions(suggestions)
}

// Entries returns a copy of the accepted log in acceptance order.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Interim returns the live hypothesis for a speaker, if any.
func (r *Reconciler) Interim(speaker string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.interim[speaker]
	return text, ok
}

// Close stops the pending suggestion timer and makes all further updates
// no-ops. Called on session teardown.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
