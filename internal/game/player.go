package game

import (
	"maps"

	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/google/uuid"
)

type Player struct {
	ID         uuid.UUID
	Name       string
	SeatIndex  int
	Active     bool
	Properties map[string]string
}

func NewPlayer(name string) *Player {
	return &Player{
		ID:         uuid.New(),
		Name:       name,
		SeatIndex:  -1,
		Active:     true,
		Properties: map[string]string{},
	}
}

func (p *Player) DTO() types.Player {
	return types.Player{
		ID:          p.ID,
		Name:        p.Name,
		SeatIndex:   p.SeatIndex,
		IsActive:    p.Active,
		PropertyBag: maps.Clone(p.Properties),
	}
}

// Master runs a session; it never occupies a seat.
type Master struct {
	ID         uuid.UUID
	Name       string
	Properties map[string]string
}

func NewMaster(name string) *Master {
	return &Master{ID: uuid.New(), Name: name, Properties: map[string]string{}}
}

func (m *Master) DTO() types.Master {
	return types.Master{ID: m.ID, Name: m.Name, PropertyBag: maps.Clone(m.Properties)}
}
