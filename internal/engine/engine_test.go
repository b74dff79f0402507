package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLua(t *testing.T, script string) *Lua {
	t.Helper()
	e := NewLua()
	t.Cleanup(e.Close)
	require.NoError(t, e.LoadScript([]byte(script)))
	require.NoError(t, e.Run())
	return e
}

func TestRun_LeavesEnginePaused(t *testing.T) {
	e := NewLua()
	assert.Equal(t, NotStarted, e.State())

	require.ErrorIs(t, e.Run(), ErrNotLoaded)
	require.NoError(t, e.LoadScript([]byte(`on("initialize", function() end)`)))
	require.NoError(t, e.Run())
	assert.Equal(t, Paused, e.State())

	require.ErrorIs(t, e.Run(), ErrInvalidState)
}

func TestRaiseEvent_ReturnsDescriptors(t *testing.T) {
	e := startLua(t, `
		on("initialize", function(p)
			return {
				{ type = "message", message = "hello", to = "*" },
				{ type = "turn", playerIdx = 2, to = { 0, 1 } },
			}
		end)
	`)

	out, err := e.RaiseEvent("initialize", map[string]any{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0].(map[string]any)
	assert.Equal(t, "message", first["type"])
	assert.Equal(t, "hello", first["message"])
	assert.Equal(t, "*", first["to"])

	second := out[1].(map[string]any)
	assert.Equal(t, 2, second["playerIdx"])
	assert.Equal(t, []any{0, 1}, second["to"])
}

func TestRaiseEvent_SingleDescriptorIsWrapped(t *testing.T) {
	e := startLua(t, `on("card", function() return { type = "remove_entity", entityIds = { "a" } } end)`)

	out, err := e.RaiseEvent("card", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "remove_entity", out[0].(map[string]any)["type"])
}

func TestRaiseEvent_PassesPayload(t *testing.T) {
	e := startLua(t, `
		on("move", function(p)
			return {{ type = "echo", who = p.playerIdx, name = p.card.name, tags = #p.tags, half = p.ratio }}
		end)
	`)

	out, err := e.RaiseEvent("move", map[string]any{
		"playerIdx": 3,
		"card":      map[string]any{"name": "ace"},
		"tags":      []any{"a", "b", "c"},
		"ratio":     0.5,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0].(map[string]any)
	assert.Equal(t, 3, got["who"])
	assert.Equal(t, "ace", got["name"])
	assert.Equal(t, 3, got["tags"])
	assert.Equal(t, 0.5, got["half"])
}

func TestRaiseEvent_NoHandlerOrNilResult(t *testing.T) {
	e := startLua(t, `on("quiet", function() end)`)

	out, err := e.RaiseEvent("unknown", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = e.RaiseEvent("quiet", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	e2 := startLua(t, `on("empty", function() return {} end)`)
	out, err = e2.RaiseEvent("empty", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRaiseEvent_ScriptErrorKeepsEngineUsable(t *testing.T) {
	e := startLua(t, `
		on("boom", function() error("kaboom") end)
		on("ok", function() return {{ type = "fine" }} end)
		on("weird", function() return 42 end)
	`)

	_, err := e.RaiseEvent("boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, Paused, e.State())

	_, err = e.RaiseEvent("weird", nil)
	require.ErrorIs(t, err, ErrBadResult)

	out, err := e.RaiseEvent("ok", nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFinish(t *testing.T) {
	e := startLua(t, `on("end", function() finish(); return {{ type = "message", message = "bye" }} end)`)

	out, err := e.RaiseEvent("end", nil)
	require.NoError(t, err)
	assert.Len(t, out, 1, "results of the final event are still returned")
	assert.Equal(t, Finished, e.State())

	_, err = e.RaiseEvent("end", nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestFinishDuringRun(t *testing.T) {
	e := startLua(t, `finish()`)
	assert.Equal(t, Finished, e.State())
}

func TestSandbox(t *testing.T) {
	e := startLua(t, `
		on("probe", function()
			return {{
				type = "probe",
				io = type(io), os = type(os), dofile = type(dofile),
				loadfile = type(loadfile), load = type(load), require = type(require),
				upper = string.upper("x"), floor = math.floor(2.7), n = #table.concat({"a", "b"}),
			}}
		end)
	`)

	out, err := e.RaiseEvent("probe", nil)
	require.NoError(t, err)
	got := out[0].(map[string]any)

	for _, name := range []string{"io", "os", "dofile", "loadfile", "load", "require"} {
		assert.Equal(t, "nil", got[name], name)
	}
	assert.Equal(t, "X", got["upper"])
	assert.Equal(t, 2, got["floor"])
	assert.Equal(t, 2, got["n"])
}

func TestLoadScript_SyntaxError(t *testing.T) {
	e := NewLua()
	require.Error(t, e.LoadScript([]byte(`on("x", function(`)))
	assert.Equal(t, NotStarted, e.State())
}

func TestOn_RejectsNonFunction(t *testing.T) {
	e := NewLua()
	require.NoError(t, e.LoadScript([]byte(`on("x", 5)`)))
	require.Error(t, e.Run())
	assert.Equal(t, NotStarted, e.State())
}
