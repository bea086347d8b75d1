// Package transport manages the two WebSocket channels to the voice backend:
// the control/audio channel and the call-addressed transcript channel. It
// performs the open handshake, fans inbound messages out to a Handler, and
// tears both channels down on end. There is no reconnection: a dropped
// channel ends the session and the user must explicitly reopen.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conversalabs/voicebridge/internal/protocol"
)

// ErrNotConnected is returned by outbound operations when the control
// channel is not open.
var ErrNotConnected = errors.New("control channel not open")

// Conn is the subset of a WebSocket connection the transport uses.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn to a URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer is the production Dialer.
type GorillaDialer struct{}

func (GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler receives inbound events from both channels. Calls are made from
// the channel read goroutines, one at a time per channel.
type Handler interface {
	HandleSessionID(id string)
	HandleCallID(id string)
	// HandleAudio receives a decoded PCM16 chunk for playback.
	HandleAudio(pcm []byte)
	// HandleInterim receives a live hypothesis from the control channel.
	HandleInterim(speaker, text string)
	// HandleInterimFinal signals that the control channel finalized the
	// speaker's utterance; the entry itself arrives on the transcript channel.
	HandleInterimFinal(speaker string)
	// HandleFinalEntry receives an authoritative entry from the transcript
	// channel. id may be empty.
	HandleFinalEntry(id, speaker, text string)
	HandleFunctionResult(name string, result json.RawMessage)
	HandleBookingConfirmed(booking json.RawMessage)
	HandleSpeaking(speaker string, speaking bool)
	// HandleRemoteError surfaces an application error; the channel stays open.
	HandleRemoteError(message string)
	// HandleDisconnect fires once when either channel closes from the remote
	// side or fails.
	HandleDisconnect()
}

// Config holds the endpoint and handshake parameters for one session.
type Config struct {
	ControlURL    string
	TranscriptURL func(callID string) string
	SampleRate    int
	TTSProvider   string
}

// Transport owns both channels for a single session.
type Transport struct {
	log     *zap.SugaredLogger
	dialer  Dialer
	cfg     Config
	handler Handler

	ctx context.Context

	mu         sync.Mutex
	control    Conn
	transcript Conn
	closed     bool

	disconnectOnce sync.Once
}

func New(log *zap.SugaredLogger, dialer Dialer, cfg Config, handler Handler) *Transport {
	return &Transport{log: log, dialer: dialer, cfg: cfg, handler: handler}
}

// Open dials the control channel, sends the audio handshake and the
// start_conversation message, and starts the read loop. The transcript
// channel is opened later, when the backend assigns a call ID.
func (t *Transport) Open(ctx context.Context) error {
	conn, err := t.dialer.Dial(ctx, t.cfg.ControlURL)
	if err != nil {
		return fmt.Errorf("dial control channel: %w", err)
	}

	t.mu.Lock()
	t.control = conn
	t.ctx = ctx
	t.mu.Unlock()

	if err := t.writeJSON(protocol.NewBrowserAudioStart(t.cfg.SampleRate, t.cfg.TTSProvider)); err != nil {
		t.closeAll()
		return fmt.Errorf("send audio handshake: %w", err)
	}
	if err := t.writeJSON(protocol.NewStartConversation()); err != nil {
		t.closeAll()
		return fmt.Errorf("send start_conversation: %w", err)
	}

	go t.readControl(conn)

	t.log.Infow("control channel open", "url", t.cfg.ControlURL)
	return nil
}

// SendAudio ships one encoded capture frame. Frames produced while the
// control channel is not open are dropped, mirroring capture running ahead
// of the connection.
func (t *Transport) SendAudio(pcm []byte) {
	t.mu.Lock()
	ready := t.control != nil && !t.closed
	t.mu.Unlock()
	if !ready {
		return
	}

	frame := protocol.NewAudioFrame(base64.StdEncoding.EncodeToString(pcm))
	if err := t.writeJSON(frame); err != nil {
		t.log.Debugw("audio frame send failed", "error", err)
	}
}

// SendText ships a typed user message. There is no queuing or retry: if the
// control channel is not open the message is lost and an error returned.
func (t *Transport) SendText(text string) error {
	t.mu.Lock()
	ready := t.control != nil && !t.closed
	t.mu.Unlock()
	if !ready {
		return ErrNotConnected
	}

	if err := t.writeJSON(protocol.NewUserText(text)); err != nil {
		return fmt.Errorf("send user text: %w", err)
	}
	return nil
}

// End sends the explicit end_conversation message and closes both channels.
// It is the local teardown path and does not fire HandleDisconnect.
func (t *Transport) End() error {
	t.mu.Lock()
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	err := t.writeJSONClosed(protocol.NewEndConversation())
	t.closeAll()
	if err != nil {
		return fmt.Errorf("send end_conversation: %w", err)
	}
	return nil
}

func (t *Transport) readControl(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.remoteClosed("control", err)
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			t.log.Warnw("malformed control message ignored", "error", err)
			continue
		}
		t.dispatchControl(msg)
	}
}

func (t *Transport) dispatchControl(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeSessionID:
		t.handler.HandleSessionID(msg.SessionID)

	case protocol.TypeCallID:
		t.log.Infow("call assigned", "call_id", msg.CallID)
		if err := t.openTranscript(msg.CallID); err != nil {
			t.log.Errorw("transcript channel open failed", "call_id", msg.CallID, "error", err)
		}
		t.handler.HandleCallID(msg.CallID)

	case protocol.TypeAudio:
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			t.log.Warnw("undecodable audio chunk ignored", "error", err)
			return
		}
		t.handler.HandleAudio(pcm)

	case protocol.TypeTranscript:
		speaker := msg.SpeakerName()
		if msg.IsFinal {
			t.handler.HandleInterimFinal(speaker)
			return
		}
		t.handler.HandleInterim(speaker, msg.Text)

	case protocol.TypeFunctionResult:
		t.handler.HandleFunctionResult(msg.FunctionName, msg.Result)

	case protocol.TypeBookingConfirmed:
		t.handler.HandleBookingConfirmed(msg.Booking)

	case protocol.TypeAgentSpeaking:
		t.handler.HandleSpeaking(protocol.SpeakerAgent, msg.IsSpeaking)

	case protocol.TypeUserSpeaking:
		t.handler.HandleSpeaking(protocol.SpeakerUser, msg.IsSpeaking)

	case protocol.TypeError:
		t.handler.HandleRemoteError(msg.Message)

	default:
		// Forward-compatible: unrecognized types are logged and ignored.
		t.log.Debugw("unrecognized control message type", "type", msg.Type)
	}
}

// openTranscript dials the transcript channel for the assigned call. A
// second open request while a channel is already up is a no-op.
func (t *Transport) openTranscript(callID string) error {
	t.mu.Lock()
	if t.transcript != nil || t.closed {
		t.mu.Unlock()
		return nil
	}
	ctx := t.ctx
	t.mu.Unlock()

	url := t.cfg.TranscriptURL(callID)
	conn, err := t.dialer.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("dial transcript channel: %w", err)
	}

	t.mu.Lock()
	if t.transcript != nil || t.closed {
		// Raced with another open or a teardown.
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.transcript = conn
	t.mu.Unlock()

	go t.readTranscript(conn)

	t.log.Infow("transcript channel open", "url", url)
	return nil
}

func (t *Transport) readTranscript(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.remoteClosed("transcript", err)
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			t.log.Warnw("malformed transcript message ignored", "error", err)
			continue
		}

		// This channel carries only finalized entries.
		if msg.Type != protocol.TypeTranscript || !msg.IsFinal {
			continue
		}
		t.handler.HandleFinalEntry(msg.ID, msg.SpeakerName(), msg.Text)
	}
}

// remoteClosed handles a channel failing or closing from the remote side.
// Both channels are torn down and the handler notified exactly once; a
// locally initiated End suppresses the notification.
func (t *Transport) remoteClosed(channel string, err error) {
	t.mu.Lock()
	closed := t.closed
	t.closed = true
	t.mu.Unlock()

	if closed {
		return
	}

	t.log.Infow("channel closed by remote", "channel", channel, "error", err)
	t.closeAll()
	t.disconnectOnce.Do(t.handler.HandleDisconnect)
}

func (t *Transport) closeAll() {
	t.mu.Lock()
	control, transcript := t.control, t.transcript
	t.control, t.transcript = nil, nil
	t.mu.Unlock()

	if control != nil {
		_ = control.Close()
	}
	if transcript != nil {
		_ = transcript.Close()
	}
}

func (t *Transport) writeJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.control == nil || t.closed {
		return ErrNotConnected
	}
	return t.writeLocked(v)
}

// writeJSONClosed writes on the control channel even after closed has been
// set, used only for the final end_conversation message.
func (t *Transport) writeJSONClosed(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.control == nil {
		return ErrNotConnected
	}
	return t.writeLocked(v)
}

func (t *Transport) writeLocked(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return t.control.WriteMessage(websocket.TextMessage, payload)
}
