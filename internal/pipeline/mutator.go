package pipeline

import (
	"fmt"

	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
)

// Apply commits one change to the session. It must run before the change is
// delivered to anyone.
func Apply(s *game.Session, c StateChange) error {
	switch m := c.Message.(type) {
	case protocol.AddObjects:
		s.AddEntities(m.Objects()...)
	case protocol.RemoveObjects:
		s.RemoveEntities(m.ObjectIDs...)
	case protocol.PropertyChanged:
		s.SetProperty(m.Name, m.Value)
	case protocol.MoveObject:
		return s.MoveEntity(m.ObjectID, m.TargetPosition, m.TargetRotation, m.TargetLayoutID)
	case protocol.PlayerTurn:
		return s.SetActivePlayer(m.PlayerID)
	case protocol.AddDefinitions:
		return s.Objects.AddClones(m.TemplateDefName, m.NewDefNames)
	case protocol.ShowMessage:
		s.AppendChat(game.ChatLine{Text: m.Message})
	default:
		return fmt.Errorf("apply %s: no state to change", c.Message.Tag())
	}
	return nil
}
