// Package node assembles one participant: its relay and peer networking, its local
// game view and, while it hosts, the authoritative simulation.
package node

import (
	"context"
	"sync"
	"time"

	"grapple-arena/internal/client"
	"grapple-arena/internal/host"
	"grapple-arena/internal/logger"
	"grapple-arena/internal/netpeer"
	"grapple-arena/internal/protocol"
)

const registryInterval = time.Second

type Config struct {
	Net  netpeer.Config
	Host host.Config
	Game client.Config
	Name string
	Mode string
}

// Node is one participant. It stands in as the networking layer's host handler and
// peer observer, forwarding to the simulation once this participant hosts.
type Node struct {
	cfg  Config
	log  *logger.Logger
	net  *netpeer.Networking
	game *client.Game

	mu          sync.Mutex
	ctx         context.Context
	host        *host.Host
	lastPlayers int
}

func New(cfg Config, input client.InputSource, log *logger.Logger) *Node {
	log = logger.OrDefault(log)
	n := &Node{
		cfg: cfg,
		log: log,
		net: netpeer.New(cfg.Net, log),
		ctx: context.Background(),
	}
	n.game = client.New(cfg.Game, n.net, input, log)
	n.net.Attach(n, n.game)
	n.net.Observe(n)
	n.net.OnHostingStarted(n.startHost)
	return n
}

// Start connects to the relay and runs the local game until ctx is done
func (n *Node) Start(ctx context.Context, relayURL string) error {
	n.mu.Lock()
	n.ctx = ctx
	n.mu.Unlock()

	if err := n.net.Connect(ctx, relayURL); err != nil {
		return err
	}
	if _, err := n.net.WaitID(ctx); err != nil {
		return err
	}
	if n.cfg.Name != "" {
		n.net.SetName(n.cfg.Name)
	}
	if n.cfg.Mode != "" {
		n.net.SetMode(n.cfg.Mode)
	}
	go n.game.Run(ctx)
	go n.registryLoop(ctx)
	return nil
}

// Join leaves any current session and joins the game hosted by id
func (n *Node) Join(id int) error {
	err := n.net.Join(id)
	if err != nil {
		return err
	}
	n.stopHost()
	return nil
}

// HostNow starts hosting without waiting for a joiner
func (n *Node) HostNow() {
	n.net.Host()
}

// SetPublic lists or unlists the hosted game
func (n *Node) SetPublic(public bool) error {
	return n.net.SetPublic(public)
}

func (n *Node) Stop() {
	n.stopHost()
	n.net.Close()
}

func (n *Node) ID() int                         { return n.net.ID() }
func (n *Node) Hosting() bool                   { return n.net.Hosting() }
func (n *Node) Game() *client.Game              { return n.game }
func (n *Node) Networking() *netpeer.Networking { return n.net }

// Host returns the running simulation, nil unless this participant hosts
func (n *Node) Host() *host.Host {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.host
}

func (n *Node) startHost() {
	n.mu.Lock()
	if n.host != nil {
		n.mu.Unlock()
		return
	}
	h := host.New(n.cfg.Host, n.net, n.log)
	n.host = h
	ctx := n.ctx
	n.mu.Unlock()

	n.log.Printf("hosting as %d", n.net.ID())
	go h.Run(ctx)
}

func (n *Node) stopHost() {
	n.mu.Lock()
	h := n.host
	n.host = nil
	n.lastPlayers = 0
	n.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// HandleMessage receives peer messages addressed to the host
func (n *Node) HandleMessage(msg protocol.Message, from int) {
	h := n.Host()
	if h == nil {
		n.log.Printf("%s from %d while not hosting", msg.Type(), from)
		return
	}
	h.HandleMessage(msg, from)
}

func (n *Node) PeerReady(id int) {
	if h := n.Host(); h != nil {
		h.PeerReady(id)
	}
}

func (n *Node) PeerLeft(id int) {
	if h := n.Host(); h != nil {
		h.PeerLeft(id)
	}
}

// registryLoop keeps the relay's player count for a public hosted game current
func (n *Node) registryLoop(ctx context.Context) {
	ticker := time.NewTicker(registryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.syncPlayers()
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) syncPlayers() {
	h := n.Host()
	if h == nil || !n.net.Public() {
		return
	}
	count := h.PlayerCount()
	n.mu.Lock()
	changed := count != n.lastPlayers
	n.lastPlayers = count
	n.mu.Unlock()
	if !changed {
		return
	}
	if err := n.net.SetPlayers(count); err != nil {
		n.log.Printf("registry: %v", err)
	}
}
