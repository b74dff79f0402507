package game

import (
	"fmt"
	"slices"
	"sync"

	"github.com/DoyleJ11/tabletop-server/pkg/types"
)

// Definitions is the per-session object definition registry. It only
// grows: clones are added, nothing is ever removed.
type Definitions struct {
	mu        sync.RWMutex
	defs      map[string]*Definition
	order     []string
	counter   int
	resources []types.ClientResource
}

func NewDefinitions(defs []*Definition, resources []types.ClientResource) (*Definitions, error) {
	d := &Definitions{
		defs:      make(map[string]*Definition, len(defs)),
		resources: resources,
	}
	for _, def := range defs {
		if err := d.add(def); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Definitions) add(def *Definition) error {
	if _, exists := d.defs[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateDefinition, def.Name)
	}
	d.defs[def.Name] = def
	d.order = append(d.order, def.Name)
	return nil
}

func (d *Definitions) Get(name string) (*Definition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.defs[name]
	return def, ok
}

// NewObject instantiates the named definition. An empty id is replaced by
// "$<name>_<n>" with a per-registry counter.
func (d *Definitions) NewObject(name, id string) (*Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	def, ok := d.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefinition, name)
	}
	if id == "" {
		id = fmt.Sprintf("$%s_%d", name, d.counter)
		d.counter++
	}
	return def.NewObject(id)
}

// AddClones copies template under every name in names. Names that already
// exist are skipped and reported; the rest are still added.
func (d *Definitions) AddClones(template string, names []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tmpl, ok := d.defs[template]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefinition, template)
	}
	var dup []string
	for _, name := range names {
		if err := d.add(tmpl.Clone(name)); err != nil {
			dup = append(dup, name)
		}
	}
	if len(dup) > 0 {
		return fmt.Errorf("%w: %v", ErrDuplicateDefinition, dup)
	}
	return nil
}

// All returns definitions in registration order.
func (d *Definitions) All() []*Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Definition, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.defs[name])
	}
	return out
}

func (d *Definitions) Resources() []types.ClientResource {
	return slices.Clone(d.resources)
}
