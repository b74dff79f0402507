// Package catalog reads game packages from disk.
//
// A package is a directory under the games root:
//
//	<game>/Data/scene.json
//	<game>/Data/objects.json
//	<game>/Data/resources.json
//	<game>/ServerScript/main.lua
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"golang.org/x/sync/errgroup"
)

var ErrPackageNotFound = errors.New("game package not found")
var ErrPackageInvalid = errors.New("game package invalid")

const (
	SceneFile     = "Data/scene.json"
	ObjectsFile   = "Data/objects.json"
	ResourcesFile = "Data/resources.json"
	ScriptFile    = "ServerScript/main.lua"
)

var requiredFiles = []string{SceneFile, ObjectsFile, ResourcesFile, ScriptFile}

type Catalog struct {
	root string
}

func New(root string) *Catalog {
	return &Catalog{root: root}
}

// Package is a fully loaded game package.
type Package struct {
	Name        string
	Scene       types.Scene
	Definitions []types.Definition
	Resources   []types.ClientResource
	Script      []byte
}

func (c *Catalog) dir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrPackageNotFound, name)
	}
	return filepath.Join(c.root, name), nil
}

// List returns every directory under the root, valid or not, sorted by name.
func (c *Catalog) List() ([]types.GameInfo, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("read games root: %w", err)
	}
	var out []types.GameInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, types.GameInfo{
			Name:    e.Name(),
			Path:    filepath.Join(c.root, e.Name()),
			IsValid: c.Validate(e.Name()) == nil,
		})
	}
	slices.SortFunc(out, func(a, b types.GameInfo) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Validate checks that every required file exists.
func (c *Catalog) Validate(name string) error {
	dir, err := c.dir(name)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("%w: %q", ErrPackageNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}

	var missing []string
	for _, f := range requiredFiles {
		if fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f))); err != nil || fi.IsDir() {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q is missing %s", ErrPackageInvalid, name, strings.Join(missing, ", "))
	}
	return nil
}

// Load reads and parses a package. Files are read in parallel.
func (c *Catalog) Load(ctx context.Context, name string) (*Package, error) {
	if err := c.Validate(name); err != nil {
		return nil, err
	}
	dir, _ := c.dir(name)
	pkg := &Package{Name: name}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return readJSON(ctx, dir, SceneFile, &pkg.Scene) })
	g.Go(func() error { return readJSON(ctx, dir, ObjectsFile, &pkg.Definitions) })
	g.Go(func() error { return readJSON(ctx, dir, ResourcesFile, &pkg.Resources) })
	g.Go(func() error {
		src, err := readFile(ctx, dir, ScriptFile)
		pkg.Script = src
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(pkg.Scene.Seats) == 0 {
		return nil, fmt.Errorf("%w: %q: scene has no seats", ErrPackageInvalid, name)
	}
	return pkg, nil
}

func readFile(ctx context.Context, dir, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

func readJSON(ctx context.Context, dir, rel string, target any) error {
	data, err := readFile(ctx, dir, rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPackageInvalid, rel, err)
	}
	return nil
}

// NewSession builds a fresh session from the package.
func (p *Package) NewSession(master *game.Master) (*game.Session, error) {
	defs := make([]*game.Definition, 0, len(p.Definitions))
	for _, d := range p.Definitions {
		defs = append(defs, &game.Definition{
			Name:       d.Name,
			Group:      d.GroupName,
			Loadable:   d.Loadable,
			Dimensions: d.Dimensions,
			Params:     d.Params,
		})
	}
	registry, err := game.NewDefinitions(defs, p.Resources)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	room, err := game.NewRoom(p.Scene, registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return game.NewSession(p.Name, master, room, registry), nil
}
