package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/conversalabs/voicebridge/internal/transcript"
)

// Transport is the dual-channel connection to the voice backend.
type Transport interface {
	Open(ctx context.Context) error
	SendAudio(pcm []byte)
	SendText(text string) error
	End() error
}

// Capturer is the microphone capture pipeline.
type Capturer interface {
	Start() error
	Stop()
	SetMuted(muted bool)
}

// PlaybackQueue plays inbound audio chunks strictly in arrival order.
type PlaybackQueue interface {
	Enqueue(samples []float32)
	Close()
}

// Store archives the conversation and its accepted transcript entries.
type Store interface {
	CreateConversation(id string, startedAt time.Time) error
	SetCallID(id, callID string) error
	AppendEntry(conversationID string, e transcript.Entry) error
	EndConversation(id string, endedAt time.Time) error
}

// View is the display collaborator. The core passes availability and booking
// payloads through untouched; formatting is the view's concern. A new
// availability payload supersedes the previous one, and a booking
// confirmation clears any pending availability.
type View interface {
	transcript.Sink
	ShowAvailability(result json.RawMessage)
	ShowBookingConfirmation(booking json.RawMessage)
	SetSpeaking(speaker string, speaking bool)
	Notice(text string)
}

// State is the connection state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
