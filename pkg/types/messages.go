package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Wire shapes shared by the websocket protocol and the HTTP state endpoint.
// Every field is lower camel case so clients decode without a schema.
//
// Vector:
//   [x, y, z]
//
// Object:
//   id: string
//   name: string        // definition name
//   layoutId: string
//   isStatic: boolean
//   position: Vector
//   rotation: Vector
//
// Player:
//   id: uuid
//   name: string
//   seatIndex: number
//   isActive: boolean
//   propertyBag: { [key]: string }

type Vector struct {
	X float64
	Y float64
	Z float64
}

func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.X, v.Y, v.Z})
}

func (v *Vector) UnmarshalJSON(data []byte) error {
	var xyz []float64
	if err := json.Unmarshal(data, &xyz); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if len(xyz) != 3 {
		return fmt.Errorf("vector: want 3 components, got %d", len(xyz))
	}
	v.X, v.Y, v.Z = xyz[0], xyz[1], xyz[2]
	return nil
}

type Object struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LayoutID string `json:"layoutId"`
	IsStatic bool   `json:"isStatic"`
	Position Vector `json:"position"`
	Rotation Vector `json:"rotation"`
}

type Player struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	SeatIndex   int               `json:"seatIndex"`
	IsActive    bool              `json:"isActive"`
	PropertyBag map[string]string `json:"propertyBag"`
}

type Master struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	PropertyBag map[string]string `json:"propertyBag"`
}
