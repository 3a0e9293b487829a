package netpeer

import (
	"errors"
	"sync"
	"time"

	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
)

var (
	ErrNotReady = errors.New("peer not ready")
	ErrClosed   = errors.New("peer closed")
)

// State is where a peer is in its connection lifecycle
type State int

const (
	Negotiating State = iota // SDP/ICE exchange in progress
	Ready                    // direct data channel open
	Relay                    // traffic goes through the relay
	Closed
)

func (s State) String() string {
	switch s {
	case Negotiating:
		return "negotiating"
	case Ready:
		return "ready"
	case Relay:
		return "relay"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Signaler sends one message to the relay
type Signaler interface {
	Send(t string, payload any) error
}

// peerEvents is how a Peer reports back to its owner
type peerEvents interface {
	peerReady(p *Peer)
	peerClosed(p *Peer)
	peerMessage(p *Peer, msg protocol.Message)
}

type peerConfig struct {
	self      int
	remote    int
	initiator bool
	timeout   time.Duration
	codec     protocol.Codec
}

// Peer is the session with one remote participant
type Peer struct {
	cfg    peerConfig
	sig    Signaler
	events peerEvents
	log    *logger.Logger
	link   Link

	mu           sync.Mutex
	state        State
	timer        *time.Timer
	offeredRelay bool // the initiator asked for the relay and waits for the answer
}

func newPeer(cfg peerConfig, sig Signaler, links LinkFactory, events peerEvents, log *logger.Logger) (*Peer, error) {
	if cfg.codec == nil {
		cfg.codec = protocol.JSON
	}
	p := &Peer{
		cfg:    cfg,
		sig:    sig,
		events: events,
		log:    logger.OrDefault(log),
	}
	link, err := links(LinkEvents{
		OnCandidate: p.onCandidate,
		OnOpen:      p.onOpen,
		OnClose:     p.linkClosed,
		OnMessage:   p.onMessage,
	})
	if err != nil {
		return nil, err
	}
	p.link = link
	return p, nil
}

func (p *Peer) ID() int { return p.cfg.remote }

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// start sends the SDP offer and arms the relay fallback timer. A failed offer is not
// fatal: the timer still fires and the pair falls back to the relay.
func (p *Peer) start() {
	p.mu.Lock()
	if p.cfg.timeout > 0 {
		p.timer = time.AfterFunc(p.cfg.timeout, p.fallback)
	}
	p.mu.Unlock()

	offer, err := p.link.CreateOffer()
	if err != nil {
		p.log.Printf("peer %d: create offer: %v", p.cfg.remote, err)
		return
	}
	p.signal(protocol.RTCSignal{MessageType: protocol.SignalOffer, SessionDescription: &offer})
}

// answer responds to the remote side's SDP offer
func (p *Peer) answer(offer protocol.SessionDescription) {
	ans, err := p.link.Accept(offer)
	if err != nil {
		p.log.Printf("peer %d: accept offer: %v", p.cfg.remote, err)
		return
	}
	p.signal(protocol.RTCSignal{MessageType: protocol.SignalAnswer, SessionDescription: &ans})
}

func (p *Peer) signal(s protocol.RTCSignal) {
	s.Src, s.Dst = p.cfg.self, p.cfg.remote
	if err := p.sig.Send(protocol.RelayRTCSignal, s); err != nil {
		p.log.Printf("peer %d: signal %s: %v", p.cfg.remote, s.MessageType, err)
	}
}

func (p *Peer) onCandidate(c protocol.ICECandidate) {
	p.signal(protocol.RTCSignal{MessageType: protocol.SignalCandidate, Candidate: &c})
}

// handleSignal applies an answer or candidate relayed from the remote side
func (p *Peer) handleSignal(s protocol.RTCSignal) {
	var err error
	switch s.MessageType {
	case protocol.SignalAnswer:
		if s.SessionDescription == nil {
			err = errors.New("answer without description")
			break
		}
		err = p.link.SetAnswer(*s.SessionDescription)
	case protocol.SignalCandidate:
		if s.Candidate == nil {
			return
		}
		err = p.link.AddCandidate(*s.Candidate)
	default:
		p.log.Printf("peer %d: unexpected signal %q", p.cfg.remote, s.MessageType)
		return
	}
	if err != nil {
		p.log.Printf("peer %d: %s: %v", p.cfg.remote, s.MessageType, err)
	}
}

// onOpen moves a negotiating peer onto the direct channel. Once the initiator has
// offered the relay it waits for the answer instead.
func (p *Peer) onOpen() {
	p.mu.Lock()
	if p.state != Negotiating || p.offeredRelay {
		p.mu.Unlock()
		return
	}
	p.state = Ready
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	p.log.Printf("peer %d: direct channel open", p.cfg.remote)
	p.events.peerReady(p)
}

// linkClosed handles the direct channel going away. Only a session running on the
// channel ends with it. During negotiation the initiator falls back to the relay
// and a relayed session never used the channel.
func (p *Peer) linkClosed() {
	p.mu.Lock()
	state := p.state
	if state == Negotiating && p.cfg.initiator && p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	switch state {
	case Ready:
		p.Close()
	case Negotiating:
		if p.cfg.initiator {
			p.fallback()
		}
	}
}

// fallback runs when the direct channel has not opened in time. The initiator asks
// the remote side to agree on relayed delivery, once.
func (p *Peer) fallback() {
	p.mu.Lock()
	if p.state != Negotiating || p.offeredRelay {
		p.mu.Unlock()
		return
	}
	p.offeredRelay = true
	p.mu.Unlock()
	p.log.Printf("peer %d: no direct channel, offering relay", p.cfg.remote)
	p.sendFallback(protocol.FallbackOffer)
}

// acceptFallback answers the remote side's relay offer and switches to the relay,
// even if our end of the channel has opened meanwhile.
func (p *Peer) acceptFallback() {
	p.sendFallback(protocol.FallbackAccept)

	p.mu.Lock()
	prev := p.state
	if prev == Negotiating || prev == Ready {
		p.state = Relay
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
	}
	p.mu.Unlock()

	switch prev {
	case Negotiating:
		p.log.Printf("peer %d: using relay", p.cfg.remote)
		p.releaseLink()
		p.events.peerReady(p)
	case Ready:
		p.log.Printf("peer %d: moving from direct channel to relay", p.cfg.remote)
		p.releaseLink()
	}
}

// useRelay moves a negotiating peer onto the relay. A peer whose channel already
// opened stays on it.
func (p *Peer) useRelay() {
	if p.transition(Negotiating, Relay) {
		p.log.Printf("peer %d: using relay", p.cfg.remote)
		p.releaseLink()
		p.events.peerReady(p)
	}
}

// releaseLink drops the unused direct channel of a relayed session
func (p *Peer) releaseLink() {
	if err := p.link.Close(); err != nil {
		p.log.Printf("peer %d: release link: %v", p.cfg.remote, err)
	}
}

func (p *Peer) sendFallback(kind string) {
	err := p.sig.Send(protocol.RelayPassthroughSignal, protocol.PassthroughSignal{
		Src:  p.cfg.self,
		Dst:  p.cfg.remote,
		Type: kind,
	})
	if err != nil {
		p.log.Printf("peer %d: passthrough-signal %s: %v", p.cfg.remote, kind, err)
	}
}

func (p *Peer) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return false
	}
	p.state = to
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return true
}

func (p *Peer) onMessage(b []byte) {
	msg, err := p.cfg.codec.Unmarshal(b)
	if err != nil {
		p.log.Printf("peer %d: dropping message: %v", p.cfg.remote, err)
		return
	}
	p.deliver(msg)
}

// deliver hands an inbound message to the owner, whichever transport carried it
func (p *Peer) deliver(msg protocol.Message) {
	if p.State() == Closed {
		return
	}
	p.events.peerMessage(p, msg)
}

// Send delivers msg over the current transport. Messages sent while negotiating are
// dropped, not queued.
func (p *Peer) Send(msg protocol.Message) error {
	switch p.State() {
	case Ready:
		b, err := p.cfg.codec.Marshal(msg)
		if err != nil {
			return err
		}
		return p.link.Send(b)
	case Relay:
		b, err := protocol.JSON.Marshal(msg)
		if err != nil {
			return err
		}
		return p.sig.Send(protocol.RelayPassthrough, protocol.Passthrough{
			Src:     p.cfg.self,
			Dst:     p.cfg.remote,
			Message: b,
		})
	case Negotiating:
		p.log.Printf("peer %d: not ready, dropping %s", p.cfg.remote, msg.Type())
		return ErrNotReady
	default:
		return ErrClosed
	}
}

// Leave tells the remote side the session is over and closes it. Relayed sessions
// have no channel whose closing the remote side would notice.
func (p *Peer) Leave() {
	if p.State() == Closed {
		return
	}
	p.sendFallback(protocol.FallbackLeave)
	p.Close()
}

// Close tears the session down. It is safe to call more than once.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.state == Closed {
		p.mu.Unlock()
		return
	}
	p.state = Closed
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if err := p.link.Close(); err != nil {
		p.log.Printf("peer %d: close: %v", p.cfg.remote, err)
	}
	p.events.peerClosed(p)
}
