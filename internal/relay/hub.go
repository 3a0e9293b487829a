package relay

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
)

const (
	minID         = 1000
	maxID         = 9999 // exclusive
	maxIDAttempts = 5 * (maxID - minID)
	maxTotalConns = 1000

	defaultName    = "gameName"
	defaultMode    = "pvp"
	defaultPlayers = 1
)

var ErrIDsExhausted = errors.New("relay: out of ids")

type Config struct {
	ClientTimeout time.Duration // participants silent this long are pruned
	PruneInterval time.Duration
	MaxPerIP      int
	PublicURL     string // base of the join links encoded in QR codes
}

func DefaultConfig() Config {
	return Config{
		ClientTimeout: 10 * time.Second,
		PruneInterval: time.Second,
		MaxPerIP:      8,
		PublicURL:     "http://localhost:8080",
	}
}

// participant is one registered id and its public-game metadata
type participant struct {
	client   *Client
	lastPing time.Time
	public   bool
	name     string
	players  int
	mode     string
}

func (p *participant) info(id int) protocol.GameInfo {
	return protocol.GameInfo{ID: id, Name: p.name, Players: p.players, Mode: p.mode}
}

// Hub tracks connections, assigns ids and routes signaling between them
type Hub struct {
	cfg       Config
	log       *logger.Logger
	analytics *Analytics
	now       func() time.Time

	mu           sync.RWMutex
	clients      map[*Client]bool
	participants map[int]*participant
	unregister   chan *Client

	// Connection limiting (accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a hub. analytics may be nil.
func NewHub(cfg Config, analytics *Analytics, log *logger.Logger) *Hub {
	def := DefaultConfig()
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = def.ClientTimeout
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = def.PublicURL
	}
	return &Hub{
		cfg:          cfg,
		log:          logger.OrDefault(log),
		analytics:    analytics,
		now:          time.Now,
		clients:      make(map[*Client]bool),
		participants: make(map[int]*participant),
		unregister:   make(chan *Client, 64),
		ipConns:      make(map[string]int),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	return h.ipConns[ip] < h.cfg.MaxPerIP
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Connect adds a new connection and registers it under a fresh id
func (h *Hub) Connect(c *Client) (int, error) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	id, err := h.assignLocked(c)
	h.mu.Unlock()
	h.analytics.SetConcurrentPeers(n)
	h.analytics.Track(EvtConnect, id, c.sessionID, c.remoteAddr)
	return id, err
}

// Run processes unregister events and prunes silent participants until ctx is done
func (h *Hub) Run(ctx context.Context) {
	prune := time.NewTicker(h.cfg.PruneInterval)
	defer prune.Stop()
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			id := client.id
			if p, ok := h.participants[id]; ok && p.client == client {
				delete(h.participants, id)
			}
			client.id = 0
			n := len(h.clients)
			h.mu.Unlock()
			h.analytics.SetConcurrentPeers(n)
			h.analytics.Track(EvtDisconnect, id, client.sessionID, "")

		case <-prune.C:
			h.Prune()

		case <-ctx.Done():
			return
		}
	}
}

// Assign registers c under a fresh id
func (h *Hub) Assign(c *Client) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.assignLocked(c)
}

func (h *Hub) assignLocked(c *Client) (int, error) {
	id, err := h.allocIDLocked()
	if err != nil {
		return 0, err
	}
	h.participants[id] = &participant{
		client:   c,
		lastPing: h.now(),
		name:     defaultName,
		players:  defaultPlayers,
		mode:     defaultMode,
	}
	c.id = id
	h.analytics.Track(EvtAssignID, id, c.sessionID, "")
	return id, nil
}

func (h *Hub) allocIDLocked() (int, error) {
	for range maxIDAttempts {
		id := minID + rand.IntN(maxID-minID)
		if _, used := h.participants[id]; !used {
			return id, nil
		}
	}
	return 0, ErrIDsExhausted
}

// IDOf returns c's id, or 0 if it has none
func (h *Hub) IDOf(c *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.id
}

// Ping refreshes c's liveness. A connection that was pruned gets a new id, reported
// with fresh=true.
func (h *Hub) Ping(c *Client) (id int, fresh bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.participants[c.id]; ok && p.client == c {
		p.lastPing = h.now()
		return c.id, false, nil
	}
	id, err = h.assignLocked(c)
	return id, true, err
}

// update applies fn to c's registry entry
func (h *Hub) update(c *Client, fn func(p *participant)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.participants[c.id]
	if !ok || p.client != c {
		return false
	}
	fn(p)
	return true
}

// Forward delivers raw to the participant registered as dst
func (h *Hub) Forward(dst int, raw []byte) bool {
	h.mu.RLock()
	p, ok := h.participants[dst]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	p.client.SendRaw(raw)
	return true
}

// Prune drops participants that have not pinged within ClientTimeout. Their
// connections stay open and re-register on the next ping.
func (h *Hub) Prune() int {
	cutoff := h.now().Add(-h.cfg.ClientTimeout)
	h.mu.Lock()
	var pruned []int
	for id, p := range h.participants {
		if p.lastPing.Before(cutoff) {
			delete(h.participants, id)
			p.client.id = 0
			pruned = append(pruned, id)
		}
	}
	left := len(h.participants)
	h.mu.Unlock()

	if len(pruned) > 0 {
		h.log.Printf("pruned %d participants (%d left)", len(pruned), left)
		for _, id := range pruned {
			h.analytics.Track(EvtPrune, id, "", "")
		}
	}
	return len(pruned)
}

// GamesList returns the public games ordered by id
func (h *Hub) GamesList() []protocol.GameInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	games := make([]protocol.GameInfo, 0)
	for id, p := range h.participants {
		if p.public {
			games = append(games, p.info(id))
		}
	}
	slices.SortFunc(games, func(a, b protocol.GameInfo) int { return a.ID - b.ID })
	return games
}

// ParticipantCount is the number of registered ids
func (h *Hub) ParticipantCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.participants)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
