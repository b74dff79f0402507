package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Memory is a Store that lives and dies with the process.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]SessionRecord
	errors   map[uuid.UUID][]ScriptError
}

func NewMemory() *Memory {
	return &Memory{
		sessions: map[uuid.UUID]SessionRecord{},
		errors:   map[uuid.UUID][]ScriptError{},
	}
}

func (m *Memory) SaveSession(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	m.sessions[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) Session(_ context.Context, id uuid.UUID) (SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (m *Memory) ListSessions(_ context.Context) ([]SessionRecord, error) {
	m.mu.RLock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b SessionRecord) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (m *Memory) AppendScriptError(_ context.Context, e ScriptError) error {
	m.mu.Lock()
	m.errors[e.SessionID] = append(m.errors[e.SessionID], e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListScriptErrors(_ context.Context, sessionID uuid.UUID) ([]ScriptError, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.errors[sessionID]), nil
}

func (m *Memory) Close() error { return nil }
