package pipeline

import (
	"testing"

	"github.com/DoyleJ11/tabletop-server/internal/game/gametest"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyAll(t *testing.T, tr *Translator, descriptors ...map[string]any) {
	t.Helper()
	results := make([]any, 0, len(descriptors))
	for _, d := range descriptors {
		results = append(results, d)
	}
	changes, err := tr.Translate(results)
	require.NoError(t, err)
	for _, c := range changes {
		require.NoError(t, Apply(tr.session, c))
	}
}

func TestApply_VectorDefaultsOnSameObject(t *testing.T) {
	s := gametest.NewSession(t, 1)
	tr := NewTranslator(s, nil)

	applyAll(t, tr, map[string]any{"type": "new_entity", "name": "token", "id": "t1"})
	obj, ok := s.Entity("t1")
	require.True(t, ok)
	assert.Equal(t, types.Vector{}, obj.Position, "new entity without position starts at origin")

	applyAll(t, tr, map[string]any{"type": "move_entity", "entityId": "t1", "targetPosition": []any{4, 5, 6}})
	applyAll(t, tr, map[string]any{"type": "move_entity", "entityId": "t1", "targetLayout": "discard"})

	obj, _ = s.Entity("t1")
	assert.Equal(t, types.Vector{X: 4, Y: 5, Z: 6}, obj.Position, "move without position keeps it")
	assert.Equal(t, "discard", obj.LayoutID)
}

func TestApply_NoOneStillMutates(t *testing.T) {
	s := gametest.NewSession(t, 3)
	tr := NewTranslator(s, nil)

	changes, err := tr.Translate([]any{map[string]any{"type": "property", "key": "round", "value": "2", "to": []any{1}}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, NoOne, changes[0].Target)

	require.NoError(t, Apply(s, changes[0]))
	v, ok := s.Property("round")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestApply_EachKind(t *testing.T) {
	s := gametest.NewSession(t, 2)
	p := gametest.Seat(t, s, "a", 1)
	tr := NewTranslator(s, nil)

	applyAll(t, tr,
		map[string]any{"type": "new_entity", "entities": []any{
			map[string]any{"name": "token", "id": "dup"},
			map[string]any{"name": "token", "id": "dup"},
			map[string]any{"name": "card", "id": "keep"},
		}},
		map[string]any{"type": "remove_entity", "entityIds": []any{"dup", "missing"}},
		map[string]any{"type": "turn", "seatIdx": 1},
		map[string]any{"type": "new_definitions", "template": "card", "defNames": []any{"card_a"}},
		map[string]any{"type": "message", "message": "round one"},
	)

	assert.Equal(t, 1, s.EntityCount())
	_, ok := s.Entity("keep")
	assert.True(t, ok)
	assert.Same(t, p, s.ActivePlayer())
	_, ok = s.Objects.Get("card_a")
	assert.True(t, ok)

	chat := s.Chat()
	require.Len(t, chat, 1)
	assert.Equal(t, "round one", chat[0].Text)
	assert.Nil(t, chat[0].Sender)
}

func TestApply_Failures(t *testing.T) {
	s := gametest.NewSession(t, 1)

	require.Error(t, Apply(s, Broadcast(protocol.MoveObject{ObjectID: "ghost"})))
	require.Error(t, Apply(s, Broadcast(protocol.ClientDisconnected{})))
}
