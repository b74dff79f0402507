package types

import (
	"time"

	"github.com/google/uuid"
)

// GameState is what a client fetches once before opening its websocket;
// every later change arrives as a protocol message.
type GameState struct {
	SessionID        uuid.UUID         `json:"sessionId"`
	PlayerID         uuid.UUID         `json:"playerId"`
	ActivePlayerID   *uuid.UUID        `json:"activePlayerId"`
	MessageServerURI string            `json:"messageServerUri"`
	Master           Master            `json:"master"`
	Players          []Player          `json:"players"`
	Definitions      []Definition      `json:"objectDefinitions"`
	Scene            Scene             `json:"roomScene"`
	ClientResources  []ClientResource  `json:"clientResources"`
	PropertyBag      map[string]string `json:"propertyBag"`
}

type Definition struct {
	Name       string         `json:"name"`
	GroupName  string         `json:"groupName"`
	Loadable   bool           `json:"loadable"`
	Dimensions Vector         `json:"dimensions"`
	Params     map[string]any `json:"params"`
}

// Scene is also the on-disk scene description of a game package.
type Scene struct {
	ID           string        `json:"id"`
	SkyboxName   string        `json:"skyboxName"`
	CameraTarget Vector        `json:"cameraTarget"`
	Distance     float64       `json:"distance"`
	Seats        []Vector      `json:"seats"`
	POVs         []PointOfView `json:"povs"`
	Lights       []Light       `json:"lights"`
	Objects      []Object      `json:"objects"`
}

type PointOfView struct {
	Name      string   `json:"name"`
	Positions []Vector `json:"positions"`
	Targets   []Vector `json:"targets"`
}

type Light struct {
	Type      string         `json:"type"`
	Color     string         `json:"color"`
	Intensity float64        `json:"intensity"`
	Position  Vector         `json:"position"`
	Params    map[string]any `json:"params"`
}

type ClientResource struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content any    `json:"content"`
}

type SessionInfo struct {
	ID              uuid.UUID `json:"id"`
	GameName        string    `json:"gameName"`
	State           string    `json:"state"`
	StartedAt       time.Time `json:"startedAt"`
	PlayersCount    int       `json:"playersCount"`
	MaxPlayersCount int       `json:"maxPlayersCount"`
	GameMasterName  string    `json:"gameMasterName"`
}

type GameInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	IsValid bool   `json:"isValid"`
}
