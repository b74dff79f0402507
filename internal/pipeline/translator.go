package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"go.uber.org/multierr"
)

var ErrUnsupportedChangeType = errors.New("unsupported change type")
var ErrInvalidDescriptor = errors.New("invalid result descriptor")

const (
	typeField = "type"
	toField   = "to"
	wildcard  = "*"
)

// Translator turns the descriptors returned by one script event into state
// changes for a session.
type Translator struct {
	session *game.Session
	timeout func(seconds int)
}

// NewTranslator returns a translator for s. onTimeout is called for every
// timeout descriptor and may be nil.
func NewTranslator(s *game.Session, onTimeout func(seconds int)) *Translator {
	if onTimeout == nil {
		onTimeout = func(int) {}
	}
	return &Translator{session: s, timeout: onTimeout}
}

// Translate keeps descriptor order. A descriptor that cannot be translated
// is skipped; the errors of all skipped descriptors are combined into the
// returned error.
func (t *Translator) Translate(results []any) ([]StateChange, error) {
	var (
		changes []StateChange
		errs    error
	)
	for i, item := range results {
		d, ok := item.(map[string]any)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("descriptor %d: %w: not a table", i, ErrInvalidDescriptor))
			continue
		}
		change, ok, err := t.translate(d)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("descriptor %d: %w", i, err))
			continue
		}
		if ok {
			changes = append(changes, change)
		}
	}
	return changes, errs
}

func (t *Translator) translate(d map[string]any) (StateChange, bool, error) {
	kind, _ := d[typeField].(string)
	switch kind {
	case "message":
		return t.message(d)
	case "new_entity":
		return t.newEntities(d)
	case "remove_entity":
		return t.removeEntities(d)
	case "property":
		return t.property(d)
	case "move_entity":
		return t.moveEntity(d)
	case "turn":
		return t.turn(d)
	case "new_definitions":
		return t.newDefinitions(d)
	case "timeout":
		seconds, ok := asInt(d["seconds"])
		if !ok || seconds < 0 {
			return StateChange{}, false, fmt.Errorf("%w: timeout needs non-negative seconds", ErrInvalidDescriptor)
		}
		t.timeout(seconds)
		return StateChange{}, false, nil
	default:
		return StateChange{}, false, fmt.Errorf("%w: %q", ErrUnsupportedChangeType, kind)
	}
}

func (t *Translator) message(d map[string]any) (StateChange, bool, error) {
	text, ok := d["message"].(string)
	if !ok {
		text, ok = d["text"].(string)
	}
	if !ok {
		return StateChange{}, false, fmt.Errorf("%w: message without text", ErrInvalidDescriptor)
	}
	msg := protocol.ShowMessage{Message: text}
	if seconds, ok := asFloat(d["duration"]); ok {
		ms := int(math.Round(seconds * 1000))
		msg.Duration = &ms
	}
	return t.address(msg, d)
}

func (t *Translator) newEntities(d map[string]any) (StateChange, bool, error) {
	entries := []map[string]any{d}
	if list, ok := d["entities"].([]any); ok {
		entries = entries[:0]
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return StateChange{}, false, fmt.Errorf("%w: entities must hold tables", ErrInvalidDescriptor)
			}
			entries = append(entries, entry)
		}
	}

	objs := make([]*game.Object, 0, len(entries))
	for _, entry := range entries {
		obj, err := t.newEntity(entry)
		if err != nil {
			return StateChange{}, false, err
		}
		objs = append(objs, obj)
	}
	return t.address(protocol.NewAddObjects(objs), d)
}

func (t *Translator) newEntity(entry map[string]any) (*game.Object, error) {
	name, _ := entry["name"].(string)
	id, _ := entry["id"].(string)
	obj, err := t.session.Objects.NewObject(name, id)
	if err != nil {
		return nil, err
	}
	obj.LayoutID, _ = entry["layout"].(string)

	origin := types.Vector{}
	pos, err := decodeVector(entry["position"], &origin)
	if err != nil {
		return nil, fmt.Errorf("entity %q position: %w", obj.ID, err)
	}
	rot, err := decodeVector(entry["rotation"], &origin)
	if err != nil {
		return nil, fmt.Errorf("entity %q rotation: %w", obj.ID, err)
	}
	obj.Position, obj.Rotation = *pos, *rot
	return obj, nil
}

func (t *Translator) removeEntities(d map[string]any) (StateChange, bool, error) {
	ids, err := stringList(d["entityIds"])
	if err != nil {
		return StateChange{}, false, fmt.Errorf("entityIds: %w", err)
	}
	return t.address(protocol.RemoveObjects{ObjectIDs: ids}, d)
}

func (t *Translator) property(d map[string]any) (StateChange, bool, error) {
	key, ok := d["key"].(string)
	if !ok || key == "" {
		return StateChange{}, false, fmt.Errorf("%w: property without key", ErrInvalidDescriptor)
	}
	value := ""
	switch v := d["value"].(type) {
	case nil:
	case string:
		value = v
	default:
		value = fmt.Sprint(v)
	}
	return t.address(protocol.PropertyChanged{Name: key, Value: value}, d)
}

func (t *Translator) moveEntity(d map[string]any) (StateChange, bool, error) {
	id, ok := d["entityId"].(string)
	if !ok || id == "" {
		return StateChange{}, false, fmt.Errorf("%w: move without entityId", ErrInvalidDescriptor)
	}
	pos, err := decodeVector(d["targetPosition"], nil)
	if err != nil {
		return StateChange{}, false, fmt.Errorf("move %q position: %w", id, err)
	}
	rot, err := decodeVector(d["targetRotation"], nil)
	if err != nil {
		return StateChange{}, false, fmt.Errorf("move %q rotation: %w", id, err)
	}
	msg := protocol.MoveObject{ObjectID: id, TargetPosition: pos, TargetRotation: rot}
	if layout, ok := d["targetLayout"].(string); ok {
		msg.TargetLayoutID = &layout
	}
	return t.address(msg, d)
}

func (t *Translator) turn(d map[string]any) (StateChange, bool, error) {
	seat, ok := asInt(d["seatIdx"])
	if !ok {
		return StateChange{}, false, fmt.Errorf("%w: turn without seatIdx", ErrInvalidDescriptor)
	}
	p := t.session.PlayerAtSeat(seat)
	if p == nil {
		return StateChange{}, false, fmt.Errorf("turn: %w: seat %d is empty", game.ErrPlayerNotFound, seat)
	}
	return t.address(protocol.PlayerTurn{PlayerID: p.ID}, d)
}

func (t *Translator) newDefinitions(d map[string]any) (StateChange, bool, error) {
	template, _ := d["template"].(string)
	if _, ok := t.session.Objects.Get(template); !ok {
		return StateChange{}, false, fmt.Errorf("%w: %q", game.ErrUnknownDefinition, template)
	}
	names, err := stringList(d["defNames"])
	if err != nil {
		return StateChange{}, false, fmt.Errorf("defNames: %w", err)
	}
	return Internal(protocol.AddDefinitions{TemplateDefName: template, NewDefNames: names}), true, nil
}

// address builds the change for msg from the descriptor's "to" field.
func (t *Translator) address(msg protocol.Outgoing, d map[string]any) (StateChange, bool, error) {
	switch to := d[toField].(type) {
	case nil:
		return Broadcast(msg), true, nil
	case string:
		if to == wildcard {
			return Broadcast(msg), true, nil
		}
	case []any:
		players := make([]*game.Player, 0, len(to))
		for _, v := range to {
			seat, ok := asInt(v)
			if !ok {
				return StateChange{}, false, fmt.Errorf("%w: seat %v is not a number", ErrInvalidDescriptor, v)
			}
			players = append(players, t.session.PlayerAtSeat(seat))
		}
		return For(msg, players), true, nil
	default:
		if seat, ok := asInt(to); ok {
			return For(msg, []*game.Player{t.session.PlayerAtSeat(seat)}), true, nil
		}
	}
	return StateChange{}, false, fmt.Errorf("%w: bad receivers %v", ErrInvalidDescriptor, d[toField])
}

// decodeVector reads an [x, y, z] array. An absent value yields def, which
// may be nil to mean "leave unchanged".
func decodeVector(v any, def *types.Vector) (*types.Vector, error) {
	if v == nil {
		if def == nil {
			return nil, nil
		}
		out := *def
		return &out, nil
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		return nil, fmt.Errorf("%w: vector must have 3 components", ErrInvalidDescriptor)
	}
	var c [3]float64
	for i, item := range arr {
		f, ok := asFloat(item)
		if !ok {
			return nil, fmt.Errorf("%w: vector component %d is not a number", ErrInvalidDescriptor, i)
		}
		c[i] = f
	}
	return &types.Vector{X: c[0], Y: c[1], Z: c[2]}, nil
}

func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %v is not a string", ErrInvalidDescriptor, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a list of strings", ErrInvalidDescriptor)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
