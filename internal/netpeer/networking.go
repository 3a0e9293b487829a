package netpeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
)

var (
	ErrNoID          = errors.New("no id assigned yet")
	ErrSelfJoin      = errors.New("cannot join own id")
	ErrAlreadyJoined = errors.New("already joined")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrNotConnected  = errors.New("not connected to relay")
)

const DefaultPingInterval = 2 * time.Second

// Handler consumes peer messages. Both the host and the client side implement it.
type Handler interface {
	HandleMessage(msg protocol.Message, from int)
}

// PeerObserver is told when a remote participant becomes reachable or goes away
type PeerObserver interface {
	PeerReady(id int)
	PeerLeft(id int)
}

type Config struct {
	Timeout      time.Duration // relay fallback window
	Codec        protocol.Codec
	PingInterval time.Duration
	Links        LinkFactory
}

// Networking owns the relay connection and every peer session of one participant,
// and routes application messages between them and the local host and client.
type Networking struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	sig       Signaler
	id        int
	idReady   chan struct{}
	hosting   bool
	connected bool
	public    bool
	hostID    int // the peer we joined, when not hosting
	peers     map[int]*Peer
	games     []protocol.GameInfo

	host         Handler
	client       Handler
	observer     PeerObserver
	onHosting    func()
	onGames      func([]protocol.GameInfo)
	onDisconnect func(error)
}

func New(cfg Config, log *logger.Logger) *Networking {
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSON
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Links == nil {
		cfg.Links = WebRTCFactory("")
	}
	return &Networking{
		cfg:     cfg,
		log:     logger.OrDefault(log),
		idReady: make(chan struct{}),
		peers:   make(map[int]*Peer),
	}
}

// Attach sets where inbound peer messages go: host while hosting, client otherwise
func (n *Networking) Attach(host, client Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.host = host
	n.client = client
}

func (n *Networking) Observe(o PeerObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observer = o
}

// OnHostingStarted is called once when this participant accepts its first joiner
func (n *Networking) OnHostingStarted(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onHosting = fn
}

func (n *Networking) OnGamesList(fn func([]protocol.GameInfo)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onGames = fn
}

// OnDisconnect is called when the relay connection drops uncleanly. Peers keep
// running.
func (n *Networking) OnDisconnect(fn func(error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onDisconnect = fn
}

// Connect dials the relay, requests an id and keeps the connection alive until ctx
// is done or the relay goes away.
func (n *Networking) Connect(ctx context.Context, url string) error {
	conn, err := DialSignal(ctx, url, n.log)
	if err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	n.mu.Lock()
	n.sig = conn
	n.mu.Unlock()

	if err := conn.Send(protocol.RelayGetID, nil); err != nil {
		conn.Close()
		return err
	}

	go n.pingLoop(ctx, conn)
	go func() {
		err := conn.ReadLoop(n.handleRelay)
		if err == nil {
			return
		}
		n.log.Printf("relay connection lost: %v", err)
		n.mu.Lock()
		fn := n.onDisconnect
		n.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-conn.Done():
		}
	}()
	return nil
}

func (n *Networking) pingLoop(ctx context.Context, conn *SignalConn) {
	ticker := time.NewTicker(n.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Send(protocol.RelayPing, nil); err != nil {
				n.log.Printf("relay ping: %v", err)
			}
		case <-conn.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// WaitID blocks until the relay has assigned an id
func (n *Networking) WaitID(ctx context.Context) (int, error) {
	select {
	case <-n.idReady:
		return n.ID(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (n *Networking) ID() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

func (n *Networking) Hosting() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hosting
}

func (n *Networking) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

func (n *Networking) Games() []protocol.GameInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]protocol.GameInfo(nil), n.games...)
}

// Peer returns the session with id, if any
func (n *Networking) Peer(id int) (*Peer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.peers[id]
	return p, ok
}

// Join drops every current session and offers a direct channel to id. Joining
// yourself or the game you are already in fails without touching the network.
func (n *Networking) Join(id int) error {
	n.mu.Lock()
	if n.id == 0 || n.sig == nil {
		n.mu.Unlock()
		return ErrNoID
	}
	if id == n.id {
		n.mu.Unlock()
		return ErrSelfJoin
	}
	if p, ok := n.peers[id]; ok && !n.hosting && n.hostID == id && p.State() != Closed {
		n.mu.Unlock()
		return ErrAlreadyJoined
	}
	old := n.takePeersLocked()
	n.hosting = false
	n.connected = false
	n.hostID = id
	self := n.id
	n.mu.Unlock()

	for _, p := range old {
		p.Leave()
	}

	p, err := n.newPeer(self, id, true)
	if err != nil {
		return err
	}
	n.log.Printf("joining %d", id)
	p.start()
	return nil
}

func (n *Networking) takePeersLocked() []*Peer {
	out := make([]*Peer, 0, len(n.peers))
	for id, p := range n.peers {
		out = append(out, p)
		delete(n.peers, id)
	}
	return out
}

func (n *Networking) newPeer(self, remote int, initiator bool) (*Peer, error) {
	n.mu.Lock()
	sig := n.sig
	n.mu.Unlock()
	p, err := newPeer(peerConfig{
		self:      self,
		remote:    remote,
		initiator: initiator,
		timeout:   n.cfg.Timeout,
		codec:     n.cfg.Codec,
	}, sig, n.cfg.Links, n, n.log)
	if err != nil {
		return nil, fmt.Errorf("peer %d: %w", remote, err)
	}
	n.mu.Lock()
	prev := n.peers[remote]
	n.peers[remote] = p
	n.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return p, nil
}

// Send routes msg to a participant id. HostID resolves to whoever hosts the session,
// the own id loops back into the local client and Broadcast reaches every peer.
func (n *Networking) Send(msg protocol.Message, to int) {
	n.mu.Lock()
	var (
		local   Handler
		targets []*Peer
	)
	self := n.id
	switch {
	case to == protocol.HostID && n.hosting:
		local = n.host
	case to == protocol.HostID && n.hostID == 0:
		// not in a game yet
		n.mu.Unlock()
		return
	case to == protocol.HostID:
		if p, ok := n.peers[n.hostID]; ok {
			targets = append(targets, p)
		}
	case to == self:
		local = n.client
	case to == protocol.Broadcast:
		for _, p := range n.peers {
			targets = append(targets, p)
		}
	default:
		if p, ok := n.peers[to]; ok {
			targets = append(targets, p)
		}
	}
	n.mu.Unlock()

	if local != nil {
		local.HandleMessage(msg, self)
		return
	}
	if len(targets) == 0 && to != protocol.Broadcast {
		n.log.Printf("send %s to %d: %v", msg.Type(), to, ErrUnknownPeer)
		return
	}
	for _, p := range targets {
		// not-ready drops are already logged by the peer
		if err := p.Send(msg); err != nil && !errors.Is(err, ErrNotReady) {
			n.log.Printf("send %s to %d: %v", msg.Type(), p.ID(), err)
		}
	}
}

// dispatch hands an inbound peer message to the host while hosting, else the client
func (n *Networking) dispatch(msg protocol.Message, from int) {
	n.mu.Lock()
	h := n.client
	if n.hosting {
		h = n.host
	}
	n.mu.Unlock()
	if h == nil {
		n.log.Printf("no handler for %s from %d", msg.Type(), from)
		return
	}
	h.HandleMessage(msg, from)
}

func (n *Networking) peerReady(p *Peer) {
	n.mu.Lock()
	obs := n.observer
	n.mu.Unlock()
	if obs != nil {
		obs.PeerReady(p.ID())
	}
}

func (n *Networking) peerClosed(p *Peer) {
	n.mu.Lock()
	if n.peers[p.ID()] == p {
		delete(n.peers, p.ID())
		if !n.hosting && n.hostID == p.ID() {
			// the game we joined is gone
			n.connected = false
			n.hostID = 0
		}
	}
	obs := n.observer
	n.mu.Unlock()
	n.log.Printf("peer %d closed", p.ID())
	if obs != nil {
		obs.PeerLeft(p.ID())
	}
}

func (n *Networking) peerMessage(p *Peer, msg protocol.Message) {
	n.dispatch(msg, p.ID())
}

// handleRelay processes one message from the relay. Malformed or unknown messages
// are logged and dropped.
func (n *Networking) handleRelay(raw []byte) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		n.log.Printf("relay: dropping message: %v", err)
		return
	}
	switch env.Type {
	case protocol.RelayGiveID:
		n.handleGiveID(env)
	case protocol.RelayGamesList:
		n.handleGamesList(env)
	case protocol.RelayPong:
	case protocol.RelayRTCSignal:
		s, err := protocol.DecodePayload[protocol.RTCSignal](env)
		if err != nil {
			n.log.Printf("relay: bad rtc-signal: %v", err)
			return
		}
		n.handleRTCSignal(s)
	case protocol.RelayPassthrough:
		pt, err := protocol.DecodePayload[protocol.Passthrough](env)
		if err != nil {
			n.log.Printf("relay: bad passthrough: %v", err)
			return
		}
		n.handlePassthrough(pt)
	case protocol.RelayPassthroughSignal:
		ps, err := protocol.DecodePayload[protocol.PassthroughSignal](env)
		if err != nil {
			n.log.Printf("relay: bad passthrough-signal: %v", err)
			return
		}
		n.handlePassthroughSignal(ps)
	default:
		n.log.Printf("relay: ignoring %q", env.Type)
	}
}

func (n *Networking) handleGiveID(env protocol.Envelope) {
	id, err := protocol.DecodePayload[int](env)
	if err != nil {
		n.log.Printf("relay: bad give-id: %v", err)
		return
	}
	n.mu.Lock()
	first := n.id == 0
	n.id = id
	n.mu.Unlock()
	n.log.Printf("assigned id %d", id)
	if first {
		close(n.idReady)
	}
}

func (n *Networking) handleGamesList(env protocol.Envelope) {
	var games []protocol.GameInfo
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &games); err != nil {
			n.log.Printf("relay: bad games-list: %v", err)
			return
		}
	}
	n.mu.Lock()
	n.games = games
	fn := n.onGames
	n.mu.Unlock()
	if fn != nil {
		fn(games)
	}
}

func (n *Networking) handleRTCSignal(s protocol.RTCSignal) {
	switch s.MessageType {
	case protocol.SignalOffer:
		n.handleOffer(s)
	case protocol.SignalAnswer:
		p, ok := n.Peer(s.Src)
		if !ok {
			n.log.Printf("answer from %d: %v", s.Src, ErrUnknownPeer)
			return
		}
		n.mu.Lock()
		n.hosting = false
		n.connected = true
		n.mu.Unlock()
		p.handleSignal(s)
	case protocol.SignalCandidate:
		if p, ok := n.Peer(s.Src); ok {
			p.handleSignal(s)
		}
	default:
		n.log.Printf("rtc-signal from %d: unknown kind %q", s.Src, s.MessageType)
	}
}

// handleOffer decides whether to accept a join. A participant that is not in a game
// becomes its host, a host accepts everyone, anyone else refuses.
func (n *Networking) handleOffer(s protocol.RTCSignal) {
	if s.SessionDescription == nil {
		n.log.Printf("offer from %d without description", s.Src)
		return
	}
	n.mu.Lock()
	accept := !n.connected || n.hosting
	self, sig := n.id, n.sig
	n.mu.Unlock()

	if !accept {
		n.log.Printf("refusing join from %d: not hosting", s.Src)
		err := sig.Send(protocol.RelayPassthroughSignal, protocol.PassthroughSignal{
			Src:  self,
			Dst:  s.Src,
			Type: protocol.FallbackRefuse,
		})
		if err != nil {
			n.log.Printf("refuse %d: %v", s.Src, err)
		}
		return
	}
	if n.Host() {
		n.log.Printf("hosting, first joiner %d", s.Src)
	}

	p, err := n.newPeer(self, s.Src, false)
	if err != nil {
		n.log.Printf("accept %d: %v", s.Src, err)
		return
	}
	p.answer(*s.SessionDescription)
}

func (n *Networking) handlePassthrough(pt protocol.Passthrough) {
	p, ok := n.Peer(pt.Src)
	if !ok {
		n.log.Printf("passthrough from %d: %v", pt.Src, ErrUnknownPeer)
		return
	}
	msg, err := protocol.JSON.Unmarshal(pt.Message)
	if err != nil {
		n.log.Printf("passthrough from %d: dropping message: %v", pt.Src, err)
		return
	}
	p.deliver(msg)
}

func (n *Networking) handlePassthroughSignal(ps protocol.PassthroughSignal) {
	p, ok := n.Peer(ps.Src)
	switch ps.Type {
	case protocol.FallbackOffer:
		if !ok {
			n.mu.Lock()
			self, sig := n.id, n.sig
			n.mu.Unlock()
			n.log.Printf("relay offer from %d: %v", ps.Src, ErrUnknownPeer)
			if err := sig.Send(protocol.RelayPassthroughSignal, protocol.PassthroughSignal{
				Src:  self,
				Dst:  ps.Src,
				Type: protocol.FallbackRefuse,
			}); err != nil {
				n.log.Printf("refuse %d: %v", ps.Src, err)
			}
			return
		}
		p.acceptFallback()
	case protocol.FallbackAccept:
		if !ok {
			return
		}
		n.mu.Lock()
		if !n.hosting && n.hostID == ps.Src {
			n.connected = true
		}
		n.mu.Unlock()
		p.useRelay()
	case protocol.FallbackLeave:
		if ok {
			n.log.Printf("%d left", ps.Src)
			p.Close()
		}
	case protocol.FallbackRefuse:
		n.log.Printf("%d refused", ps.Src)
		n.mu.Lock()
		if !n.hosting && n.hostID == ps.Src {
			n.connected = false
		}
		n.mu.Unlock()
		if ok {
			p.Close()
		}
	default:
		n.log.Printf("passthrough-signal from %d: unknown kind %q", ps.Src, ps.Type)
	}
}

// Host makes this participant the host of its own session. It reports whether
// hosting started now.
func (n *Networking) Host() bool {
	n.mu.Lock()
	if n.hosting {
		n.mu.Unlock()
		return false
	}
	n.hosting = true
	n.connected = true
	fn := n.onHosting
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// SetPublic lists or unlists this participant's game on the relay
func (n *Networking) SetPublic(public bool) error {
	n.mu.Lock()
	n.public = public
	n.mu.Unlock()
	return n.relaySend(protocol.RelaySetGameVis, public)
}

func (n *Networking) Public() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.public
}

func (n *Networking) SetName(name string) error {
	return n.relaySend(protocol.RelaySetName, name)
}

func (n *Networking) SetMode(mode string) error {
	return n.relaySend(protocol.RelaySetMode, mode)
}

// SetPlayers declares how many players the listed game has
func (n *Networking) SetPlayers(count int) error {
	return n.relaySend(protocol.RelaySetPlayers, count)
}

// ListGames asks the relay for the public games. The answer arrives through
// OnGamesList.
func (n *Networking) ListGames() error {
	return n.relaySend(protocol.RelayListGames, nil)
}

func (n *Networking) relaySend(t string, payload any) error {
	n.mu.Lock()
	sig := n.sig
	n.mu.Unlock()
	if sig == nil {
		return ErrNotConnected
	}
	return sig.Send(t, payload)
}

// Close leaves every peer session and ends the relay connection
func (n *Networking) Close() {
	n.mu.Lock()
	peers := n.takePeersLocked()
	sig := n.sig
	n.mu.Unlock()
	for _, p := range peers {
		p.Leave()
	}
	if c, ok := sig.(*SignalConn); ok {
		c.Close()
	}
}
