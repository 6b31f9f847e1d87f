// Package store persists transition events in SQLite.
//
// The store is a coordinator sink: every state change is recorded with the
// actor, the driving metric and instability at the moment of transition,
// and a session id that groups one stimulation run. Raw samples are never
// persisted — only transitions and the scores they happened at.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/entrainlab/go-wavemind/internal/log"
	"github.com/entrainlab/go-wavemind/pkg/coordinator"
	"github.com/entrainlab/go-wavemind/pkg/emotion"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	actor_id    TEXT NOT NULL,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT,
	actor_id     TEXT NOT NULL,
	from_state   TEXT NOT NULL,
	to_state     TEXT NOT NULL,
	metric       REAL NOT NULL,
	instability  REAL NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_actor ON transitions(actor_id, created_at);
`

// Store records transition events in SQLite.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	sessions map[string]string // actor id -> current session id
}

// Open opens (or creates) the database and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{
		db:       db,
		sessions: make(map[string]string),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StateChanged implements coordinator.Sink. A transition into
// BeingStimulated from Idle opens a new session; everything in between is
// attributed to it. Persistence failures are logged, never surfaced —
// the evaluation loop must not care whether the disk cooperates.
func (s *Store) StateChanged(ev coordinator.Event) {
	s.mu.Lock()
	session := s.sessions[ev.ActorID]
	if ev.From == emotion.Idle && ev.To == emotion.BeingStimulated {
		session = uuid.NewString()
		s.sessions[ev.ActorID] = session
		if err := s.insertSession(session, ev.ActorID, ev.At); err != nil {
			log.Error("record session", "actor", ev.ActorID, "error", err)
		}
	}
	s.mu.Unlock()

	if err := s.insertTransition(session, ev); err != nil {
		log.Error("record transition", "actor", ev.ActorID, "error", err)
	}
}

func (s *Store) insertSession(id, actorID string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, actor_id, started_at) VALUES (?, ?, ?)`,
		id, actorID, at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) insertTransition(session string, ev coordinator.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO transitions (session_id, actor_id, from_state, to_state, metric, instability, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullable(session), ev.ActorID, ev.FromName, ev.ToName,
		ev.Metric, ev.Instability, ev.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Transition is one persisted state change.
type Transition struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	ActorID     string    `json:"actor_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Metric      float64   `json:"metric"`
	Instability float64   `json:"instability"`
	At          time.Time `json:"at"`
}

// Recent returns the most recent transitions, newest first. An empty
// actorID returns transitions for all actors.
func (s *Store) Recent(actorID string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, COALESCE(session_id, ''), actor_id, from_state, to_state, metric, instability, created_at
		FROM transitions`
	args := []any{}
	if actorID != "" {
		query += ` WHERE actor_id = ?`
		args = append(args, actorID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var created string
		if err := rows.Scan(&tr.ID, &tr.SessionID, &tr.ActorID, &tr.From, &tr.To,
			&tr.Metric, &tr.Instability, &created); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.At, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SessionCount returns how many sessions have been recorded for an actor.
func (s *Store) SessionCount(actorID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE actor_id = ?`, actorID).Scan(&n)
	return n, err
}
