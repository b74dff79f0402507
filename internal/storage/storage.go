// Package storage keeps session records and the script error log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// SessionRecord is the persisted summary of a session. It is written when a
// session starts and again when it ends.
type SessionRecord struct {
	ID         uuid.UUID  `json:"id"`
	GameName   string     `json:"gameName"`
	MasterName string     `json:"masterName"`
	State      string     `json:"state"`
	Seats      int        `json:"seats"`
	Players    int        `json:"players"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

type ScriptError struct {
	SessionID uuid.UUID `json:"sessionId"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

type Store interface {
	// SaveSession inserts or replaces the record with the same id.
	SaveSession(ctx context.Context, rec SessionRecord) error
	Session(ctx context.Context, id uuid.UUID) (SessionRecord, error)
	// ListSessions returns the newest sessions first.
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	AppendScriptError(ctx context.Context, e ScriptError) error
	// ListScriptErrors returns a session's errors oldest first.
	ListScriptErrors(ctx context.Context, sessionID uuid.UUID) ([]ScriptError, error)
	Close() error
}
