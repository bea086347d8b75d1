// Package storage archives conversations and their accepted final transcript
// entries to a local SQLite database, giving the embedding application a
// replayable history of past calls.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conversalabs/voicebridge/internal/transcript"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Conversation is one archived voice conversation.
type Conversation struct {
	ID        string     `json:"id"`
	CallID    string     `json:"call_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "voicebridge.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (conversation_id, id),
			FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_started_at ON conversations(started_at)"); err != nil {
		return fmt.Errorf("create conversations index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateConversation(id string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("conversation id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO conversations(id, started_at, status) VALUES(?, ?, ?)`,
		id,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("create conversation %s: %w", id, err)
	}
	return nil
}

// SetCallID records the backend-assigned call identifier once it arrives.
func (s *SQLiteStore) SetCallID(id, callID string) error {
	res, err := s.db.Exec(`UPDATE conversations SET call_id = ? WHERE id = ?`, callID, id)
	if err != nil {
		return fmt.Errorf("set call id for conversation %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set call id rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) EndConversation(id string, endedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE conversations SET ended_at = ?, status = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		StatusEnded,
		id,
	)
	if err != nil {
		return fmt.Errorf("end conversation %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end conversation rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendEntry archives an accepted final entry. Duplicate (conversation, id)
// pairs are ignored, matching the in-memory dedup invariant.
func (s *SQLiteStore) AppendEntry(conversationID string, e transcript.Entry) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO entries(id, conversation_id, speaker, text, timestamp) VALUES(?, ?, ?, ?, ?)`,
		e.ID,
		conversationID,
		e.Speaker,
		e.Text,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append entry for conversation %s: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(id string) (Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, call_id, started_at, ended_at, status FROM conversations WHERE id = ?`,
		id,
	)
	return scanConversation(row)
}

// ListConversations returns all archived conversations, most recent first.
func (s *SQLiteStore) ListConversations() ([]Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, call_id, started_at, ended_at, status
		 FROM conversations
		 ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversations := make([]Conversation, 0, 16)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}

	return conversations, nil
}

// GetEntries replays the archived transcript in acceptance order.
func (s *SQLiteStore) GetEntries(conversationID string) ([]transcript.Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, speaker, text, timestamp
		 FROM entries
		 WHERE conversation_id = ?
		 ORDER BY timestamp ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries for conversation %s: %w", conversationID, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]transcript.Entry, 0, 32)
	for rows.Next() {
		var e transcript.Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.Speaker, &e.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan entry for conversation %s: %w", conversationID, err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse entry timestamp for conversation %s: %w", conversationID, err)
		}
		e.Timestamp = parsed

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows for conversation %s: %w", conversationID, err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&c.ID, &c.CallID, &startedAt, &endedAt, &c.Status); err != nil {
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parse started_at: %w", err)
	}
	c.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Conversation{}, fmt.Errorf("parse ended_at: %w", err)
		}
		c.EndedAt = &parsedEnd
	}

	return c, nil
}
