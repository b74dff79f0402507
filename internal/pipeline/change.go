package pipeline

import (
	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/google/uuid"
)

type Target int

const (
	// NoOne changes are applied to the session but never transmitted.
	NoOne Target = iota
	Everyone
	Some
)

func (t Target) String() string {
	switch t {
	case NoOne:
		return "no_one"
	case Everyone:
		return "everyone"
	case Some:
		return "some"
	default:
		return "unknown"
	}
}

// StateChange is one committed change together with the players that must
// be told about it.
type StateChange struct {
	Message protocol.Outgoing
	Target  Target
	Players []*game.Player // only for Some
}

func Broadcast(msg protocol.Outgoing) StateChange {
	return StateChange{Message: msg, Target: Everyone}
}

func Internal(msg protocol.Outgoing) StateChange {
	return StateChange{Message: msg, Target: NoOne}
}

// For addresses msg to the given players. Nil players are dropped and an
// empty result is demoted to NoOne.
func For(msg protocol.Outgoing, players []*game.Player) StateChange {
	out := make([]*game.Player, 0, len(players))
	for _, p := range players {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return Internal(msg)
	}
	return StateChange{Message: msg, Target: Some, Players: out}
}

// Includes reports whether the player with id should receive the change.
func (c StateChange) Includes(id uuid.UUID) bool {
	switch c.Target {
	case Everyone:
		return true
	case Some:
		for _, p := range c.Players {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}
