package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns peer messages into bytes for a data channel or relay passthrough
type Codec interface {
	Name() string
	Marshal(Message) ([]byte, error)
	Unmarshal([]byte) (Message, error)
}

// CodecByName returns the codec for "json" or "msgpack"
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// peerEnvelope is the JSON wire shape: {type, data, frame}
type peerEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Frame *int64          `json:"frame,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(m Message) ([]byte, error) {
	env := peerEnvelope{Type: m.Type()}
	var payload any
	switch msg := m.(type) {
	case WorldData:
		payload = msg.Seed
	case PlayerInput:
		payload = msg
	case GameState:
		players := msg.Players
		if players == nil {
			players = []PlayerSnapshot{}
		}
		payload = players
		env.Frame = &msg.Frame
	case Pong:
		env.Frame = &msg.Frame
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func (jsonCodec) Unmarshal(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, ErrEmptyMessage
	}
	var env peerEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var frame int64
	if env.Frame != nil {
		frame = *env.Frame
	}
	switch env.Type {
	case TypeWorldData:
		seed, err := decodeData[int64](env)
		return WorldData{Seed: seed}, err
	case TypePlayerInput:
		in, err := decodeData[PlayerInput](env)
		return in, err
	case TypeGameState:
		players, err := decodeData[[]PlayerSnapshot](env)
		return GameState{Players: players, Frame: frame}, err
	case TypePong:
		return Pong{Frame: frame}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodeData[T any](env peerEnvelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%w: no data for %q", ErrEmptyMessage, env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return out, nil
}

// packedMsg is the msgpack wire shape. One struct carries every message type;
// unused fields are omitted.
type packedMsg struct {
	T       string           `msgpack:"t"`
	Seed    int64            `msgpack:"s,omitempty"`
	Input   *PlayerInput     `msgpack:"i,omitempty"`
	Players []PlayerSnapshot `msgpack:"p,omitempty"`
	Frame   int64            `msgpack:"f,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(m Message) ([]byte, error) {
	p := packedMsg{T: m.Type()}
	switch msg := m.(type) {
	case WorldData:
		p.Seed = msg.Seed
	case PlayerInput:
		p.Input = &msg
	case GameState:
		p.Players = msg.Players
		p.Frame = msg.Frame
	case Pong:
		p.Frame = msg.Frame
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return msgpack.Marshal(&p)
}

func (msgpackCodec) Unmarshal(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, ErrEmptyMessage
	}
	var p packedMsg
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode msgpack: %w", err)
	}
	switch p.T {
	case TypeWorldData:
		return WorldData{Seed: p.Seed}, nil
	case TypePlayerInput:
		if p.Input == nil {
			return nil, fmt.Errorf("%w: no data for %q", ErrEmptyMessage, p.T)
		}
		return *p.Input, nil
	case TypeGameState:
		return GameState{Players: p.Players, Frame: p.Frame}, nil
	case TypePong:
		return Pong{Frame: p.Frame}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.T)
}
