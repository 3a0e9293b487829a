package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> relay message types
const (
	RelayGetID             = "get-id"
	RelayListGames         = "list-games"
	RelayPing              = "ping"
	RelaySetGameVis        = "set-game-vis"
	RelaySetName           = "set-name"
	RelaySetMode           = "set-mode"
	RelaySetPlayers        = "set-players"
	RelayRTCSignal         = "rtc-signal"
	RelayPassthrough       = "passthrough"
	RelayPassthroughSignal = "passthrough-signal"
)

// Relay -> client message types. rtc-signal, passthrough and passthrough-signal are
// echoed unchanged to their destination.
const (
	RelayGiveID    = "give-id"
	RelayGamesList = "games-list"
	RelayPong      = "pong"
)

// rtc-signal message kinds
const (
	SignalOffer     = "data-offer"
	SignalAnswer    = "data-answer"
	SignalCandidate = "ice-candidate"
)

// passthrough-signal handshake kinds
const (
	FallbackOffer  = "offer"
	FallbackAccept = "accept"
	FallbackRefuse = "refuse"
	FallbackLeave  = "leave" // the sender is ending the session
)

// Envelope is the relay wire shape: {type, data}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds a relay message. A nil payload produces a bare {type}.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: %w", ErrEmptyMessage)
	}
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrEmptyMessage)
	}
	return e, nil
}

// DecodePayload unmarshals the envelope's data into T
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.Type)
	}
	err := json.Unmarshal(env.Data, &out)
	return out, err
}

// Routed is implemented by every relay payload that names a destination
type Routed interface {
	Destination() int
}

// SessionDescription is an SDP offer or answer
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// RTCSignal carries one step of direct channel negotiation
type RTCSignal struct {
	Src                int                 `json:"src"`
	Dst                int                 `json:"dst"`
	MessageType        string              `json:"messageType"`
	SessionDescription *SessionDescription `json:"sessionDescription,omitempty"`
	Candidate          *ICECandidate       `json:"candidate,omitempty"`
}

// Passthrough carries one peer message through the relay. Message holds the
// JSON-encoded peer message.
type Passthrough struct {
	Src     int             `json:"src"`
	Dst     int             `json:"dst"`
	Message json.RawMessage `json:"message"`
}

// PassthroughSignal negotiates switching a peer pair to relayed delivery
type PassthroughSignal struct {
	Src  int    `json:"src"`
	Dst  int    `json:"dst"`
	Type string `json:"type"`
}

func (s RTCSignal) Destination() int         { return s.Dst }
func (p Passthrough) Destination() int       { return p.Dst }
func (p PassthroughSignal) Destination() int { return p.Dst }

// GameInfo is one row of the public games list
type GameInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Mode    string `json:"mode"`
	Slots   *int   `json:"slots,omitempty"`
}
