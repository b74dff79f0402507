// Package gametest builds small sessions for tests in other packages.
package gametest

import (
	"testing"

	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/stretchr/testify/require"
)

// Definitions: "table" (field), "token" and "card" (resource).
func Definitions(t *testing.T) *game.Definitions {
	t.Helper()
	defs, err := game.NewDefinitions([]*game.Definition{
		{Name: "table", Group: "field", Loadable: true},
		{Name: "token", Group: "resource", Loadable: true},
		{Name: "card", Group: "resource", Loadable: true, Params: map[string]any{"face": "down"}},
	}, []types.ClientResource{{ID: "card_back", Type: "texture", Content: "back.png"}})
	require.NoError(t, err)
	return defs
}

// NewSession returns a created session with the given number of empty seats
// and a single table in the interior.
func NewSession(t *testing.T, seats int) *game.Session {
	t.Helper()
	defs := Definitions(t)
	room, err := game.NewRoom(types.Scene{
		ID:      "test-room",
		Seats:   make([]types.Vector, seats),
		POVs:    []types.PointOfView{{Name: "Default"}},
		Objects: []types.Object{{ID: "tbl", Name: "table"}},
	}, defs)
	require.NoError(t, err)
	return game.NewSession("test-game", game.NewMaster("gm"), room, defs)
}

// Seat adds a new named player on a fixed seat.
func Seat(t *testing.T, s *game.Session, name string, seat int) *game.Player {
	t.Helper()
	p := game.NewPlayer(name)
	require.NoError(t, s.AddPlayerAt(p, seat))
	return p
}
