package netpeer

import "grapple-arena/internal/protocol"

// LinkEvents are the callbacks a Link fires. Any of them may be nil.
type LinkEvents struct {
	OnCandidate func(c protocol.ICECandidate)
	OnOpen      func()
	OnClose     func()
	OnMessage   func(b []byte)
}

// Link is a direct data channel to one remote participant, negotiated with SDP and
// ICE candidates exchanged through the relay.
type Link interface {
	CreateOffer() (protocol.SessionDescription, error)
	Accept(offer protocol.SessionDescription) (protocol.SessionDescription, error)
	SetAnswer(answer protocol.SessionDescription) error
	AddCandidate(c protocol.ICECandidate) error
	Send(b []byte) error
	Close() error
}

// LinkFactory builds a Link for one peer
type LinkFactory func(ev LinkEvents) (Link, error)
