// Package catalogtest writes game packages for tests.
package catalogtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/stretchr/testify/require"
)

// Definitions used by WritePackage: "table" (field) and "token" (resource).
var Definitions = []types.Definition{
	{Name: "table", GroupName: "field", Loadable: true},
	{Name: "token", GroupName: "resource", Loadable: true, Dimensions: types.Vector{X: 1, Y: 1, Z: 1}},
}

// WritePackage creates games/<name> under root with the given number of
// seats and server script, and returns root.
func WritePackage(t *testing.T, root, name string, seats int, script string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Data"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ServerScript"), 0o755))

	scene := types.Scene{
		ID:    name + "-room",
		Seats: make([]types.Vector, seats),
		POVs:  []types.PointOfView{{Name: "Table"}},
		Objects: []types.Object{
			{ID: "board", Name: "table"},
		},
	}
	writeJSON(t, filepath.Join(dir, "Data", "scene.json"), scene)
	writeJSON(t, filepath.Join(dir, "Data", "objects.json"), Definitions)
	writeJSON(t, filepath.Join(dir, "Data", "resources.json"), []types.ClientResource{
		{ID: "felt", Type: "texture", Content: "felt.png"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ServerScript", "main.lua"), []byte(script), 0o644))
	return root
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
