package game

import (
	"errors"
	"fmt"
	"maps"

	"github.com/DoyleJ11/tabletop-server/pkg/types"
)

var ErrUnknownDefinition = errors.New("unknown object definition")
var ErrUnknownGroup = errors.New("definition group cannot be instantiated")
var ErrDuplicateDefinition = errors.New("definition already exists")
var ErrObjectNotFound = errors.New("object not found")

type ObjectType string

const (
	ObjectStatic ObjectType = "static"
	ObjectEntity ObjectType = "entity"
)

// Groups decide whether an instance is scenery or a game piece.
var groupTypes = map[string]ObjectType{
	"_layout":  ObjectStatic,
	"static":   ObjectStatic,
	"field":    ObjectStatic,
	"resource": ObjectEntity,
}

type Definition struct {
	Name       string
	Group      string
	Loadable   bool
	Dimensions types.Vector
	Params     map[string]any
}

// Clone returns a definition with the same shape and params under a new
// name. Clones are minted at runtime and are never loadable from the
// package.
func (d *Definition) Clone(name string) *Definition {
	return &Definition{
		Name:       name,
		Group:      d.Group,
		Dimensions: d.Dimensions,
		Params:     d.Params,
	}
}

func (d *Definition) NewObject(id string) (*Object, error) {
	kind, ok := groupTypes[d.Group]
	if !ok {
		return nil, fmt.Errorf("%w: %q (group %q)", ErrUnknownGroup, d.Name, d.Group)
	}
	return &Object{ID: id, Type: kind, Definition: d}, nil
}

func (d *Definition) DTO() types.Definition {
	return types.Definition{
		Name:       d.Name,
		GroupName:  d.Group,
		Loadable:   d.Loadable,
		Dimensions: d.Dimensions,
		Params:     maps.Clone(d.Params),
	}
}

type Object struct {
	ID           string
	Type         ObjectType
	Definition   *Definition
	LayoutID     string
	Position     types.Vector
	Rotation     types.Vector
	PrivateOwner *Player
}

func (o *Object) DTO() types.Object {
	return types.Object{
		ID:       o.ID,
		Name:     o.Definition.Name,
		LayoutID: o.LayoutID,
		IsStatic: o.Type == ObjectStatic,
		Position: o.Position,
		Rotation: o.Rotation,
	}
}

// VisibleTo reports whether a player may see the object.
func (o *Object) VisibleTo(p *Player) bool {
	return o.PrivateOwner == nil || (p != nil && o.PrivateOwner.ID == p.ID)
}
