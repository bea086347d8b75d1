package transcript

import "time"

// Entry is a finalized utterance in the conversation log. Entries are
// append-only: once accepted they are never mutated or removed.
type Entry struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
