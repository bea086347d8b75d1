// Package session ties the capture pipeline, the transport, the playback
// queue and the transcript reconciler together into one conversation
// lifecycle. A Session is single-use: once ended it cannot be restarted, the
// embedding application creates a fresh one instead.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conversalabs/voicebridge/internal/audio"
	"github.com/conversalabs/voicebridge/internal/protocol"
	"github.com/conversalabs/voicebridge/internal/transcript"
)

// ErrEnded is returned when an operation is attempted on a torn-down session.
var ErrEnded = errors.New("session already ended")

// Session is one voice conversation from open to teardown.
type Session struct {
	log        *zap.SugaredLogger
	id         string
	capture    Capturer
	queue      PlaybackQueue
	store      Store
	view       View
	reconciler *transcript.Reconciler

	mu        sync.Mutex
	transport Transport
	state     State
	remoteID  string
	callID    string
	ended     bool
}

// New creates a session with a fresh locally generated identifier. The
// transport is attached on Start because it needs the session as its event
// handler.
func New(log *zap.SugaredLogger, capture Capturer, queue PlaybackQueue, store Store, view View, suggestions []string, suggestionDelay time.Duration) *Session {
	return &Session{
		log:        log,
		id:         "session_" + uuid.NewString(),
		capture:    capture,
		queue:      queue,
		store:      store,
		view:       view,
		reconciler: transcript.NewReconciler(log, view, suggestions, suggestionDelay),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CallID returns the backend-assigned call identifier, empty until assigned.
func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// Start acquires the microphone, opens the transport and archives the new
// conversation. A capture or transport failure is terminal: the session ends
// up disconnected and must be recreated.
func (s *Session) Start(ctx context.Context, t Transport) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrEnded
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("session already %s", s.state)
	}
	s.state = StateConnecting
	s.transport = t
	s.mu.Unlock()

	if err := s.store.CreateConversation(s.id, time.Now().UTC()); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("archive conversation: %w", err)
	}

	if err := s.capture.Start(); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("start capture: %w", err)
	}

	if err := t.Open(ctx); err != nil {
		s.capture.Stop()
		s.setState(StateDisconnected)
		return fmt.Errorf("open transport: %w", err)
	}

	s.setState(StateConnected)
	s.log.Infow("session started", "session_id", s.id)
	return nil
}

// SendText ships a typed user message. Messages sent while disconnected are
// lost; the failure is logged, not queued.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	t := s.transport
	connected := s.state == StateConnected && !s.ended
	s.mu.Unlock()

	if !connected || t == nil {
		s.log.Errorw("text message dropped, session not connected", "session_id", s.id)
		return ErrEnded
	}

	if err := t.SendText(text); err != nil {
		s.log.Errorw("text message dropped", "session_id", s.id, "error", err)
		return err
	}
	return nil
}

// SetMuted toggles the outbound audio between live frames and silence. The
// capture stream itself keeps running.
func (s *Session) SetMuted(muted bool) {
	s.capture.SetMuted(muted)
}

// End tears the session down explicitly: the backend is told the
// conversation is over, then capture, playback and the transcript state are
// released and the archive row closed. Safe to call more than once.
func (s *Session) End() {
	s.teardown(true)
}

func (s *Session) teardown(sendEnd bool) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.state = StateDisconnected
	t := s.transport
	s.mu.Unlock()

	if sendEnd && t != nil {
		if err := t.End(); err != nil {
			s.log.Warnw("end_conversation send failed", "session_id", s.id, "error", err)
		}
	}

	s.capture.Stop()
	s.queue.Close()
	s.reconciler.Close()

	if err := s.store.EndConversation(s.id, time.Now().UTC()); err != nil {
		s.log.Errorw("archive close failed", "session_id", s.id, "error", err)
	}

	s.log.Infow("session ended", "session_id", s.id)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// HandleSessionID records the backend's identifier. The locally generated ID
// stays the archive key so the conversation row created on Start remains
// addressable.
func (s *Session) HandleSessionID(id string) {
	s.mu.Lock()
	s.remoteID = id
	s.mu.Unlock()
	s.log.Infow("backend session confirmed", "session_id", s.id, "remote_id", id)
}

func (s *Session) HandleCallID(id string) {
	s.mu.Lock()
	s.callID = id
	s.mu.Unlock()

	if err := s.store.SetCallID(s.id, id); err != nil {
		s.log.Errorw("archive call id failed", "session_id", s.id, "call_id", id, "error", err)
	}
}

// HandleAudio decodes an inbound PCM16 chunk and hands it to the playback
// queue. Chunks arriving after teardown are dropped.
func (s *Session) HandleAudio(pcm []byte) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return
	}

	s.queue.Enqueue(audio.DecodePCM16(pcm))
}

func (s *Session) HandleInterim(speaker, text string) {
	s.reconciler.SetInterim(speaker, text)
}

func (s *Session) HandleInterimFinal(speaker string) {
	s.reconciler.ClearInterim(speaker)
}

// HandleFinalEntry runs an authoritative entry through the reconciler and
// archives it if it was not a duplicate.
func (s *Session) HandleFinalEntry(id, speaker, text string) {
	entry, accepted := s.reconciler.AcceptFinal(id, speaker, text)
	if !accepted {
		return
	}

	if err := s.store.AppendEntry(s.id, entry); err != nil {
		s.log.Errorw("archive entry failed", "session_id", s.id, "entry_id", entry.ID, "error", err)
	}
}

// HandleFunctionResult passes availability payloads to the view. Results for
// other functions have no display surface and are dropped.
func (s *Session) HandleFunctionResult(name string, result json.RawMessage) {
	if name != protocol.FunctionAvailability {
		s.log.Debugw("function result dropped", "function", name)
		return
	}
	s.view.ShowAvailability(result)
}

func (s *Session) HandleBookingConfirmed(booking json.RawMessage) {
	s.view.ShowBookingConfirmation(booking)
}

func (s *Session) HandleSpeaking(speaker string, speaking bool) {
	s.view.SetSpeaking(speaker, speaking)
}

// HandleRemoteError surfaces an application error from the backend. The
// conversation continues.
func (s *Session) HandleRemoteError(message string) {
	s.log.Warnw("backend error", "session_id", s.id, "message", message)
	s.view.Notice("Error: " + message)
}

// HandleDisconnect fires when the transport loses a channel. The transport
// already closed both connections, so teardown skips the end message.
func (s *Session) HandleDisconnect() {
	s.log.Infow("remote disconnected", "session_id", s.id)
	s.view.Notice("Disconnected")
	s.teardown(false)
}
