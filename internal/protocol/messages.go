// Package protocol defines the messages exchanged with clients and their
// JSON encoding. Every frame is an object with a "tag" discriminator and
// lower camel case fields.
package protocol

import (
	"encoding/json"
	"maps"

	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/google/uuid"
)

const (
	TagSessionStarted     = "session_start"
	TagClientReady        = "init_done"
	TagClientConnected    = "connected"
	TagClientDisconnected = "away"
	TagMessage            = "text_message"
	TagPlayerTurn         = "turn"
	TagAddObjects         = "add_objects"
	TagRemoveObjects      = "remove_objects"
	TagMoveObject         = "move_object"
	TagPropertyChanged    = "prop_change"
	TagRTC                = "rtc"
	TagAddDefinitions     = "add_definitions"
	TagTimeoutElapsed     = "timeout"
)

// Incoming is a message that can be processed by a session. Payload is a
// fresh map the caller may modify.
type Incoming interface {
	Sender() uuid.UUID
	Payload() map[string]any
	isIncoming()
}

// Outgoing is a message the server sends to clients.
type Outgoing interface {
	Tag() string
	isOutgoing()
}

// SessionStarted is synthesized by the pipeline once the script is running.
type SessionStarted struct{}

func (SessionStarted) Sender() uuid.UUID       { return uuid.Nil }
func (SessionStarted) Payload() map[string]any { return map[string]any{} }
func (SessionStarted) isIncoming()             {}

// ClientReady is sent by a client once it has loaded the game state.
type ClientReady struct {
	SenderID uuid.UUID `json:"senderId"`
}

func (m ClientReady) Sender() uuid.UUID     { return m.SenderID }
func (ClientReady) Payload() map[string]any { return map[string]any{} }
func (ClientReady) isIncoming()             {}

// TimeoutElapsed is re-enqueued by the pipeline when a script timer fires.
type TimeoutElapsed struct {
	Seconds int
}

func (TimeoutElapsed) Sender() uuid.UUID { return uuid.Nil }
func (m TimeoutElapsed) Payload() map[string]any {
	return map[string]any{"seconds": m.Seconds}
}
func (TimeoutElapsed) isIncoming() {}

// Custom carries any game specific event. ID is the frame's tag and becomes
// the script event name.
type Custom struct {
	ID       string
	SenderID uuid.UUID
	Data     map[string]any
}

func (m Custom) Sender() uuid.UUID { return m.SenderID }
func (m Custom) Payload() map[string]any {
	if m.Data == nil {
		return map[string]any{}
	}
	return maps.Clone(m.Data)
}
func (Custom) isIncoming() {}

// RTCSignal is WebRTC signaling relayed between two clients untouched.
type RTCSignal struct {
	SenderID uuid.UUID       `json:"senderId"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"payload"`
	TargetID uuid.UUID       `json:"targetId"`
}

func (m RTCSignal) Sender() uuid.UUID     { return m.SenderID }
func (RTCSignal) Payload() map[string]any { return nil }
func (RTCSignal) isIncoming()             {}
func (RTCSignal) Tag() string             { return TagRTC }
func (RTCSignal) isOutgoing()             {}

// WithSender returns msg stamped with the given sender id. Messages that
// never come from a client are returned unchanged.
func WithSender(msg Incoming, id uuid.UUID) Incoming {
	switch m := msg.(type) {
	case ClientReady:
		m.SenderID = id
		return m
	case Custom:
		m.SenderID = id
		return m
	case RTCSignal:
		m.SenderID = id
		return m
	default:
		return msg
	}
}

type ClientConnected struct {
	SenderID  uuid.UUID    `json:"senderId"`
	NewPlayer types.Player `json:"newPlayer"`
}

func NewClientConnected(p types.Player) ClientConnected {
	return ClientConnected{SenderID: p.ID, NewPlayer: p}
}

func (ClientConnected) Tag() string { return TagClientConnected }
func (ClientConnected) isOutgoing() {}

type ClientDisconnected struct {
	SenderID uuid.UUID `json:"senderId"`
}

func (ClientDisconnected) Tag() string { return TagClientDisconnected }
func (ClientDisconnected) isOutgoing() {}

// ShowMessage asks clients to display text; Duration is in milliseconds.
type ShowMessage struct {
	Message  string `json:"message"`
	Duration *int   `json:"duration"`
}

func (ShowMessage) Tag() string { return TagMessage }
func (ShowMessage) isOutgoing() {}

type PlayerTurn struct {
	PlayerID uuid.UUID `json:"playerId"`
}

func (PlayerTurn) Tag() string { return TagPlayerTurn }
func (PlayerTurn) isOutgoing() {}

type PropertyChanged struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (PropertyChanged) Tag() string { return TagPropertyChanged }
func (PropertyChanged) isOutgoing() {}

// AddObjects carries wire copies of new objects and keeps the originals for
// the session state.
type AddObjects struct {
	PlayerID      *uuid.UUID     `json:"playerId"`
	AddingObjects []types.Object `json:"addingObjects"`

	objects []*game.Object
}

func NewAddObjects(objs []*game.Object) AddObjects {
	m := AddObjects{AddingObjects: make([]types.Object, 0, len(objs)), objects: objs}
	for _, o := range objs {
		m.AddingObjects = append(m.AddingObjects, o.DTO())
	}
	return m
}

func (m AddObjects) Objects() []*game.Object { return m.objects }
func (AddObjects) Tag() string               { return TagAddObjects }
func (AddObjects) isOutgoing()               {}

type RemoveObjects struct {
	ObjectIDs []string `json:"objectIds"`
}

func (RemoveObjects) Tag() string { return TagRemoveObjects }
func (RemoveObjects) isOutgoing() {}

// MoveObject leaves nil targets untouched.
type MoveObject struct {
	ObjectID       string        `json:"objectId"`
	TargetPosition *types.Vector `json:"targetPosition"`
	TargetRotation *types.Vector `json:"targetRotation"`
	TargetLayoutID *string       `json:"targetLayoutId"`
}

func (MoveObject) Tag() string { return TagMoveObject }
func (MoveObject) isOutgoing() {}

// AddDefinitions clones a definition under new names. It is applied to the
// server state only.
type AddDefinitions struct {
	TemplateDefName string   `json:"templateDefName"`
	NewDefNames     []string `json:"newDefNames"`
}

func (AddDefinitions) Tag() string { return TagAddDefinitions }
func (AddDefinitions) isOutgoing() {}
