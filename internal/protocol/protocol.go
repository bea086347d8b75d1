// Package protocol defines the JSON message bodies exchanged with the voice
// backend over the control and transcript channels.
package protocol

import "encoding/json"

// Inbound message types on the control channel.
const (
	TypeSessionID        = "session_id"
	TypeCallID           = "call_id"
	TypeAudio            = "audio"
	TypeTranscript       = "transcript"
	TypeFunctionResult   = "function_result"
	TypeBookingConfirmed = "booking_confirmed"
	TypeAgentSpeaking    = "agent_speaking"
	TypeUserSpeaking     = "user_speaking"
	TypeError            = "error"
)

// Speaker values used across transcript events.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// FunctionAvailability is the function_result payload the view renders as an
// availability card.
const FunctionAvailability = "check_availability"

// BrowserAudioStart is the handshake declaring the outbound audio encoding.
type BrowserAudioStart struct {
	Type        string `json:"type"`
	Action      string `json:"action"`
	SampleRate  int    `json:"sampleRate"`
	Format      string `json:"format"`
	TTSProvider string `json:"tts_provider"`
}

// NewBrowserAudioStart builds the handshake for 16 kHz PCM16 capture.
func NewBrowserAudioStart(sampleRate int, ttsProvider string) BrowserAudioStart {
	return BrowserAudioStart{
		Type:        "browser_audio",
		Action:      "start",
		SampleRate:  sampleRate,
		Format:      "pcm16",
		TTSProvider: ttsProvider,
	}
}

// StartConversation asks the backend to begin the conversation.
type StartConversation struct {
	Type string `json:"type"`
}

func NewStartConversation() StartConversation {
	return StartConversation{Type: "start_conversation"}
}

// AudioFrame carries one base64-encoded PCM16 capture frame outbound.
type AudioFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func NewAudioFrame(base64PCM string) AudioFrame {
	return AudioFrame{Type: TypeAudio, Data: base64PCM}
}

// UserText carries a typed user message outbound.
type UserText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewUserText(text string) UserText {
	return UserText{Type: "user_text", Text: text}
}

// EndConversation tells the backend the user hung up.
type EndConversation struct {
	Type string `json:"type"`
}

func NewEndConversation() EndConversation {
	return EndConversation{Type: "end_conversation"}
}

// Message is the inbound envelope for both channels. Fields are populated
// according to Type; unknown types decode fine and are ignored upstream.
type Message struct {
	Type string `json:"type"`

	SessionID string `json:"session_id,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// audio
	Data string `json:"data,omitempty"`

	// transcript — the control channel labels the speaker "role", the
	// transcript channel labels it "speaker".
	Role    string `json:"role,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`
	ID      string `json:"id,omitempty"`

	// function_result / booking_confirmed — opaque, passed through to the view
	FunctionName string          `json:"function_name,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Booking      json.RawMessage `json:"booking,omitempty"`

	// agent_speaking / user_speaking
	IsSpeaking bool `json:"is_speaking,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Parse decodes an inbound envelope.
func Parse(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// SpeakerName normalizes the speaker label of a transcript event: role wins,
// then speaker, defaulting to the agent as the original protocol does.
func (m Message) SpeakerName() string {
	if m.Role != "" {
		return m.Role
	}
	if m.Speaker != "" {
		return m.Speaker
	}
	return SpeakerAgent
}
