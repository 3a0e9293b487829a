package netpeer

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"grapple-arena/internal/protocol"
)

const channelLabel = "game"

var errChannelNotOpen = errors.New("data channel not open")

// WebRTCLink is a Link over a single pre-negotiated WebRTC data channel
type WebRTCLink struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel
	ev LinkEvents

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit // candidates that arrived before the remote description
	closeOnce sync.Once
}

// WebRTCFactory returns a LinkFactory using stunURL for ICE. An empty URL means
// host candidates only.
func WebRTCFactory(stunURL string) LinkFactory {
	return func(ev LinkEvents) (Link, error) {
		return NewWebRTCLink(stunURL, ev)
	}
}

func NewWebRTCLink(stunURL string, ev LinkEvents) (*WebRTCLink, error) {
	return newWebRTCLink(nil, stunURL, ev)
}

// newWebRTCLink builds the link through api, or the default API when api is nil
func newWebRTCLink(api *webrtc.API, stunURL string, ev LinkEvents) (*WebRTCLink, error) {
	cfg := webrtc.Configuration{}
	if stunURL != "" {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{stunURL}}}
	}
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if api != nil {
		pc, err = api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, err
	}

	// both sides create the channel with the same id, so neither waits on OnDataChannel
	negotiated := true
	var id uint16
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Negotiated: &negotiated, ID: &id})
	if err != nil {
		pc.Close()
		return nil, err
	}

	l := &WebRTCLink{pc: pc, dc: dc, ev: ev}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnCandidate == nil {
			return
		}
		init := c.ToJSON()
		ev.OnCandidate(protocol.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			l.closed()
		}
	})
	dc.OnOpen(func() {
		if ev.OnOpen != nil {
			ev.OnOpen()
		}
	})
	dc.OnClose(l.closed)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if ev.OnMessage != nil {
			ev.OnMessage(msg.Data)
		}
	})
	return l, nil
}

func (l *WebRTCLink) closed() {
	l.closeOnce.Do(func() {
		if l.ev.OnClose != nil {
			l.ev.OnClose()
		}
	})
}

func (l *WebRTCLink) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (l *WebRTCLink) Accept(offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP})
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := l.flushCandidates(); err != nil {
		return protocol.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (l *WebRTCLink) SetAnswer(answer protocol.SessionDescription) error {
	err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
	if err != nil {
		return err
	}
	return l.flushCandidates()
}

func (l *WebRTCLink) AddCandidate(c protocol.ICECandidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	l.mu.Lock()
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, init)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(init)
}

func (l *WebRTCLink) flushCandidates() error {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *WebRTCLink) Send(b []byte) error {
	if l.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errChannelNotOpen
	}
	return l.dc.Send(b)
}

func (l *WebRTCLink) Close() error {
	return l.pc.Close()
}
