package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/conversalabs/voicebridge/internal/protocol"
	"github.com/conversalabs/voicebridge/internal/transcript"
)

// consoleView renders the conversation to a terminal. Interim hypotheses are
// printed as ellipsis lines rather than rewritten in place; the final entry
// that follows supersedes them visually.
type consoleView struct {
	mu      sync.Mutex
	w       io.Writer
	calLink string
}

func newConsoleView(w io.Writer, calLink string) *consoleView {
	return &consoleView{w: w, calLink: calLink}
}

func (v *consoleView) print(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.w, text)
}

func (v *consoleView) AppendEntry(e transcript.Entry) {
	v.print(fmt.Sprintf("[%s] %s: %s", e.Timestamp.Local().Format("3:04 PM"), speakerLabel(e.Speaker), e.Text))
}

func (v *consoleView) SetInterim(speaker, text string) {
	v.print(fmt.Sprintf("  … %s: %s", speakerLabel(speaker), text))
}

func (v *consoleView) ClearInterim(speaker string) {}

func (v *consoleView) ShowSuggestions(suggestions []string) {
	var b strings.Builder
	b.WriteString("Try saying:")
	for _, s := range suggestions {
		b.WriteString("\n  - " + s)
	}
	v.print(b.String())
}

func (v *consoleView) HideSuggestions() {}

func (v *consoleView) ShowAvailability(result json.RawMessage) {
	var data struct {
		Date           string   `json:"date"`
		AvailableTimes []string `json:"available_times"`
	}
	if err := json.Unmarshal(result, &data); err != nil || data.Date == "" {
		v.print("Availability: " + string(result))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available times for %s:", data.Date)
	if len(data.AvailableTimes) == 0 {
		b.WriteString("\n  No times available.")
	}
	for _, t := range data.AvailableTimes {
		b.WriteString("\n  - " + formatClockTime(t))
	}
	if v.calLink != "" && v.calLink != "demo-not-configured" {
		b.WriteString("\n  Or book directly: https://cal.com/" + v.calLink)
	}
	v.print(b.String())
}

func (v *consoleView) ShowBookingConfirmation(booking json.RawMessage) {
	var data struct {
		Date  string `json:"date"`
		Time  string `json:"time"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(booking, &data); err != nil || data.Date == "" {
		v.print("Booking confirmed: " + string(booking))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Booking confirmed: %s at %s for %s", data.Date, formatClockTime(data.Time), data.Name)
	if data.Phone != "" {
		b.WriteString("\n  Phone: " + data.Phone)
	}
	if data.Email != "" {
		b.WriteString("\n  Email: " + data.Email)
	}
	v.print(b.String())
}

func (v *consoleView) SetSpeaking(speaker string, speaking bool) {
	if speaking {
		v.print(fmt.Sprintf("(%s is speaking)", speakerLabel(speaker)))
	}
}

func (v *consoleView) Notice(text string) {
	v.print("* " + text)
}

func speakerLabel(speaker string) string {
	switch speaker {
	case protocol.SpeakerUser:
		return "You"
	case protocol.SpeakerAgent:
		return "Agent"
	}
	return speaker
}

// formatClockTime converts a 24-hour "15:04" slot time to 12-hour display
// form, passing unparseable values through unchanged.
func formatClockTime(raw string) string {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return raw
	}
	return t.Format("3:04 PM")
}
