package game

import (
	"fmt"
	"slices"

	"github.com/DoyleJ11/tabletop-server/pkg/types"
)

type Metadata struct {
	Name         string
	SkyboxName   string
	LookAtPoint  types.Vector
	Distance     float64
	Seats        []types.Vector
	PointsOfView []types.PointOfView
	Lights       []types.Light
}

// Room is the scene graph of one session. It is not safe for concurrent
// use on its own; Session serializes every access.
type Room struct {
	Metadata Metadata
	Interior []*Object
	Entities []*Object
	POVName  string
	Seats    []*Player
}

// NewRoom builds a room from a scene description. Objects are split into
// interior and entities by the type of their definition, and the seat array
// is sized to the scene's seat positions.
func NewRoom(scene types.Scene, defs *Definitions) (*Room, error) {
	room := &Room{
		Metadata: Metadata{
			Name:         scene.ID,
			SkyboxName:   scene.SkyboxName,
			LookAtPoint:  scene.CameraTarget,
			Distance:     scene.Distance,
			Seats:        slices.Clone(scene.Seats),
			PointsOfView: slices.Clone(scene.POVs),
			Lights:       slices.Clone(scene.Lights),
		},
		Seats: make([]*Player, len(scene.Seats)),
	}
	if len(scene.POVs) > 0 {
		room.POVName = scene.POVs[0].Name
	}

	for _, o := range scene.Objects {
		obj, err := defs.NewObject(o.Name, o.ID)
		if err != nil {
			return nil, fmt.Errorf("scene object %q: %w", o.ID, err)
		}
		obj.LayoutID = o.LayoutID
		obj.Position = o.Position
		obj.Rotation = o.Rotation

		switch obj.Type {
		case ObjectStatic:
			room.Interior = append(room.Interior, obj)
		case ObjectEntity:
			room.Entities = append(room.Entities, obj)
		}
	}
	return room, nil
}

func (r *Room) EntitiesByID(ids ...string) []*Object {
	var out []*Object
	for _, e := range r.Entities {
		if slices.Contains(ids, e.ID) {
			out = append(out, e)
		}
	}
	return out
}

// RemoveEntities drops every entity whose id is listed and returns how many
// were removed.
func (r *Room) RemoveEntities(ids ...string) int {
	before := len(r.Entities)
	r.Entities = slices.DeleteFunc(r.Entities, func(e *Object) bool {
		return slices.Contains(ids, e.ID)
	})
	return before - len(r.Entities)
}

func (r *Room) FreeSeats() []int {
	var free []int
	for i, p := range r.Seats {
		if p == nil {
			free = append(free, i)
		}
	}
	return free
}

// Scene renders the room as seen by a player: interior plus every entity
// that is public or privately owned by that player.
func (r *Room) Scene(viewer *Player) types.Scene {
	scene := types.Scene{
		ID:           r.Metadata.Name,
		SkyboxName:   r.Metadata.SkyboxName,
		CameraTarget: r.Metadata.LookAtPoint,
		Distance:     r.Metadata.Distance,
		Seats:        slices.Clone(r.Metadata.Seats),
		POVs:         slices.Clone(r.Metadata.PointsOfView),
		Lights:       slices.Clone(r.Metadata.Lights),
		Objects:      make([]types.Object, 0, len(r.Interior)+len(r.Entities)),
	}
	for _, o := range r.Interior {
		scene.Objects = append(scene.Objects, o.DTO())
	}
	for _, e := range r.Entities {
		if e.VisibleTo(viewer) {
			scene.Objects = append(scene.Objects, e.DTO())
		}
	}
	return scene
}
