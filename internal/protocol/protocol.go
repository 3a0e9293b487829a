package protocol

import (
	"errors"

	"grapple-arena/internal/geom"
)

// Peer message types
const (
	TypeWorldData   = "world-data"
	TypePlayerInput = "player-input"
	TypeGameState   = "game-state"
	TypePong        = "pong"
)

// Routing sentinels understood by the networking layer
const (
	HostID    = -2 // whichever participant is hosting
	Broadcast = -1 // every connected peer
)

var (
	ErrUnknownType  = errors.New("protocol: unknown message type")
	ErrEmptyMessage = errors.New("protocol: empty message")
)

// Message is one peer protocol message. The implementations in this package are the
// only ones; switch on the concrete type to handle them.
type Message interface {
	Type() string
	isMessage()
}

// WorldData tells a client which map seed is in play (host -> client)
type WorldData struct {
	Seed int64
}

// PlayerInput is a client's accumulated input for one client tick (client -> host).
// Optional fields are omitted on the wire when inactive.
type PlayerInput struct {
	InputX     float64    `json:"inputX" msgpack:"x"`
	InputY     float64    `json:"inputY" msgpack:"y"`
	LookAngle  float64    `json:"lookAngle" msgpack:"l"`
	SwingPos   *geom.Vec2 `json:"swingPos,omitempty" msgpack:"sp,omitempty"`
	Shooting   bool       `json:"shooting,omitempty" msgpack:"sh,omitempty"`
	Detonating bool       `json:"detonating,omitempty" msgpack:"d,omitempty"`
	NoMap      bool       `json:"noMap,omitempty" msgpack:"nm,omitempty"`
}

// GameState is the full roster at one network tick (host -> client)
type GameState struct {
	Players []PlayerSnapshot
	Frame   int64
}

// Pong echoes a game-state frame back to the host so it can measure round trip time
type Pong struct {
	Frame int64
}

// PlayerSnapshot is one roster row of a game-state message
type PlayerSnapshot struct {
	ID          int        `json:"id" msgpack:"id"`
	X           float64    `json:"x" msgpack:"x"`
	Y           float64    `json:"y" msgpack:"y"`
	Angle       float64    `json:"angle" msgpack:"a"`
	Speed       float64    `json:"speed" msgpack:"s"`
	LookAngle   float64    `json:"lookAngle" msgpack:"l"`
	Ping        float64    `json:"ping" msgpack:"p"`
	Health      float64    `json:"health" msgpack:"h"`
	SwingPos    *geom.Vec2 `json:"swingPos,omitempty" msgpack:"sp,omitempty"`
	BulletPos   *geom.Vec2 `json:"bulletPos,omitempty" msgpack:"bp,omitempty"`
	BulletAngle *float64   `json:"bulletAngle,omitempty" msgpack:"ba,omitempty"`
	BulletAge   *float64   `json:"bulletAge,omitempty" msgpack:"bg,omitempty"`
}

func (WorldData) Type() string   { return TypeWorldData }
func (PlayerInput) Type() string { return TypePlayerInput }
func (GameState) Type() string   { return TypeGameState }
func (Pong) Type() string        { return TypePong }

func (WorldData) isMessage()   {}
func (PlayerInput) isMessage() {}
func (GameState) isMessage()   {}
func (Pong) isMessage()        {}
