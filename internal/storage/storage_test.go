package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	older := SessionRecord{ID: uuid.New(), GameName: "chess", MasterName: "gm", State: "started", Seats: 2, StartedAt: base}
	newer := SessionRecord{ID: uuid.New(), GameName: "durak", MasterName: "gm", State: "created", Seats: 4, StartedAt: base.Add(time.Hour)}
	require.NoError(t, s.SaveSession(ctx, older))
	require.NoError(t, s.SaveSession(ctx, newer))

	ended := base.Add(2 * time.Hour)
	older.State, older.Players, older.EndedAt = "ended", 2, &ended
	require.NoError(t, s.SaveSession(ctx, older), "save replaces")

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, "ended", list[1].State)
	require.NotNil(t, list[1].EndedAt)
	assert.True(t, ended.Equal(*list[1].EndedAt))

	got, err := s.Session(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Players)

	_, err = s.Session(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AppendScriptError(ctx, ScriptError{SessionID: older.ID, Event: "initialize", Message: "first", At: base}))
	require.NoError(t, s.AppendScriptError(ctx, ScriptError{SessionID: older.ID, Event: "roll", Message: "second", At: base}))
	require.NoError(t, s.AppendScriptError(ctx, ScriptError{SessionID: newer.ID, Event: "x", Message: "other", At: base}))

	errs, err := s.ListScriptErrors(ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "first", errs[0].Message)
	assert.Equal(t, "roll", errs[1].Event)

	none, err := s.ListScriptErrors(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	require.NoError(t, m.Close())
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TABLETOP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TABLETOP_TEST_DATABASE_URL not set")
	}

	p, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.db.Exec("TRUNCATE sessions, script_errors").Error)

	exerciseStore(t, p)
}
