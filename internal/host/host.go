package host

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"grapple-arena/internal/geom"
	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
	"grapple-arena/internal/sim"
	"grapple-arena/internal/world"
)

const (
	tickHistory = 30 // network ticks remembered for ping matching

	minSeed = 10000
	maxSeed = 999999
)

// Router delivers a peer message to a participant id. Sending to the host's own id
// must loop back into its local client.
type Router interface {
	Send(msg protocol.Message, to int)
}

type Config struct {
	PhysicsRate     int // Hz
	NetworkRate     int // Hz
	RoundLength     time.Duration
	MaxPhysicsStep  time.Duration
	MapSize         int
	MapDensity      float64
	Seed            int64 // first round's seed, 0 picks one
	ValidateAnchors bool  // ignore client anchors and pick the nearest handle here
}

func DefaultConfig() Config {
	return Config{
		PhysicsRate:    60,
		NetworkRate:    30,
		RoundLength:    5 * time.Minute,
		MaxPhysicsStep: time.Second,
		MapSize:        world.DefaultSize,
		MapDensity:     world.DefaultDensity,
	}
}

// RoundTicks is the number of network ticks in one round
func (c Config) RoundTicks() int64 {
	return int64(c.RoundLength.Seconds() * float64(c.NetworkRate))
}

type tickTime struct {
	tick int64
	at   time.Time
}

type outgoing struct {
	msg protocol.Message
	to  int
}

// Host runs the authoritative simulation for one session
type Host struct {
	cfg    Config
	router Router
	log    *logger.Logger
	now    func() time.Time

	mu          sync.Mutex
	seed        int64
	world       *world.World
	players     []*sim.Player
	tickNum     int64
	tickTimes   [tickHistory]tickTime
	tickIdx     int
	epoch       time.Time
	lastPhysics time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a host with a freshly generated map. Nothing runs until Run is called.
func New(cfg Config, router Router, log *logger.Logger) *Host {
	def := DefaultConfig()
	if cfg.PhysicsRate <= 0 {
		cfg.PhysicsRate = def.PhysicsRate
	}
	if cfg.NetworkRate <= 0 {
		cfg.NetworkRate = def.NetworkRate
	}
	if cfg.RoundLength <= 0 {
		cfg.RoundLength = def.RoundLength
	}
	if cfg.MaxPhysicsStep <= 0 {
		cfg.MaxPhysicsStep = def.MaxPhysicsStep
	}
	if cfg.MapSize <= 0 {
		cfg.MapSize = def.MapSize
	}
	if cfg.MapDensity <= 0 {
		cfg.MapDensity = def.MapDensity
	}

	h := &Host{
		cfg:    cfg,
		router: router,
		log:    logger.OrDefault(log),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	h.epoch = h.now()
	h.lastPhysics = h.epoch
	seed := cfg.Seed
	if seed == 0 {
		seed = newSeed(0)
	}
	h.setSeed(seed)
	return h
}

// newSeed draws a map seed different from prev
func newSeed(prev int64) int64 {
	for {
		s := minSeed + rand.Int64N(maxSeed-minSeed+1)
		if s != prev {
			return s
		}
	}
}

func (h *Host) setSeed(seed int64) {
	h.seed = seed
	h.world = world.Generate(seed, h.cfg.MapSize, h.cfg.MapDensity)
}

// Run drives the physics and network ticks until ctx is done or Stop is called
func (h *Host) Run(ctx context.Context) {
	physics := time.NewTicker(time.Second / time.Duration(h.cfg.PhysicsRate))
	defer physics.Stop()
	network := time.NewTicker(time.Second / time.Duration(h.cfg.NetworkRate))
	defer network.Stop()

	h.mu.Lock()
	h.lastPhysics = h.now()
	h.mu.Unlock()

	h.log.Printf("host running: seed=%d physics=%dHz network=%dHz", h.Seed(), h.cfg.PhysicsRate, h.cfg.NetworkRate)
	for {
		select {
		case <-physics.C:
			h.PhysicsTick()
		case <-network.C:
			h.NetworkTick()
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		}
	}
}

// Stop terminates Run
func (h *Host) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// PhysicsTick advances every player by the wall-clock time since the previous tick,
// capped at MaxPhysicsStep
func (h *Host) PhysicsTick() {
	h.mu.Lock()
	now := h.now()
	dt := now.Sub(h.lastPhysics)
	h.lastPhysics = now
	if dt > h.cfg.MaxPhysicsStep {
		dt = h.cfg.MaxPhysicsStep
	}
	h.stepLocked(float64(dt) / float64(time.Millisecond))
	h.mu.Unlock()
}

// Step advances every player by dt milliseconds
func (h *Host) Step(dt float64) {
	h.mu.Lock()
	h.stepLocked(dt)
	h.mu.Unlock()
}

func (h *Host) stepLocked(dt float64) {
	for _, p := range h.players {
		p.Update(dt, h.world, true)
	}
}

// NetworkTick advances the round clock and sends the full roster to every player
func (h *Host) NetworkTick() {
	h.mu.Lock()
	var out []outgoing
	h.tickNum++
	if h.tickNum >= h.cfg.RoundTicks() {
		out = h.resetLocked()
	}

	h.tickTimes[h.tickIdx] = tickTime{tick: h.tickNum, at: h.now()}
	h.tickIdx = (h.tickIdx + 1) % tickHistory

	state := protocol.GameState{
		Players: make([]protocol.PlayerSnapshot, 0, len(h.players)),
		Frame:   h.tickNum,
	}
	for _, p := range h.players {
		state.Players = append(state.Players, p.Snapshot())
	}
	for _, p := range h.players {
		out = append(out, outgoing{msg: state, to: p.ID})
	}
	h.mu.Unlock()

	h.flush(out)
}

// Reset starts a new round on a new map
func (h *Host) Reset() {
	h.mu.Lock()
	out := h.resetLocked()
	h.mu.Unlock()
	h.flush(out)
}

func (h *Host) resetLocked() []outgoing {
	h.tickNum = 0
	h.setSeed(newSeed(h.seed))
	for _, p := range h.players {
		p.Reset()
	}
	h.log.Printf("round over, new map seed=%d", h.seed)

	out := make([]outgoing, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, outgoing{msg: protocol.WorldData{Seed: h.seed}, to: p.ID})
	}
	return out
}

// flush sends queued messages. It runs without the lock held because the router may
// loop straight back into this host.
func (h *Host) flush(out []outgoing) {
	if h.router == nil {
		return
	}
	for _, o := range out {
		h.router.Send(o.msg, o.to)
	}
}

// HandleMessage processes one message from participant from
func (h *Host) HandleMessage(msg protocol.Message, from int) {
	var out []outgoing
	h.mu.Lock()
	switch m := msg.(type) {
	case protocol.PlayerInput:
		if m.NoMap {
			out = append(out, outgoing{msg: protocol.WorldData{Seed: h.seed}, to: from})
		}
		p := h.playerLocked(from)
		if p == nil {
			p = sim.NewRandomPlayer(from, h.explode)
			h.players = append(h.players, p)
			h.log.Printf("player %d joined", from)
		}
		if h.cfg.ValidateAnchors && m.SwingPos != nil && !p.Swinging {
			m.SwingPos = nil
			if handle, _, ok := p.ClosestHandle(h.world); ok {
				m.SwingPos = &handle
			}
		}
		p.TakeInput(m, false)
	case protocol.Pong:
		if p := h.playerLocked(from); p != nil {
			sent := h.sentAtLocked(m.Frame)
			p.Ping = float64(h.now().Sub(sent)) / float64(time.Millisecond)
		}
	default:
		h.log.Printf("ignoring %s from %d", msg.Type(), from)
	}
	h.mu.Unlock()
	h.flush(out)
}

// sentAtLocked finds when a frame was broadcast. Frames that have aged out of the
// history count as sent at the host's start.
func (h *Host) sentAtLocked(frame int64) time.Time {
	for _, t := range h.tickTimes {
		if t.tick == frame && !t.at.IsZero() {
			return t.at
		}
	}
	return h.epoch
}

// explode is the explosion callback for every player on the host. The owner is
// pushed harder but takes less damage.
func (h *Host) explode(owner *sim.Player, at geom.Vec2) {
	for _, p := range h.players {
		if p == owner {
			p.ImpulseFrom(at, sim.ExplosionRadius, sim.SelfExplosionSpeed, sim.SelfExplosionDamage)
		} else {
			p.ImpulseFrom(at, sim.ExplosionRadius, sim.ExplosionSpeed, sim.ExplosionDamage)
		}
	}
}

// PeerReady sends the current map to a newly connected participant
func (h *Host) PeerReady(id int) {
	h.flush([]outgoing{{msg: protocol.WorldData{Seed: h.Seed()}, to: id}})
}

// PeerLeft drops the participant's player from the roster
func (h *Host) PeerLeft(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.players[:0]
	for _, p := range h.players {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) != len(h.players) {
		h.log.Printf("player %d left", id)
	}
	clear(h.players[len(kept):])
	h.players = kept
}

func (h *Host) playerLocked(id int) *sim.Player {
	for _, p := range h.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (h *Host) Seed() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seed
}

func (h *Host) World() *world.World {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world
}

func (h *Host) TickNum() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tickNum
}

func (h *Host) PlayerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.players)
}

// Snapshot returns every player's current row
func (h *Host) Snapshot() []protocol.PlayerSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.PlayerSnapshot, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, p.Snapshot())
	}
	return out
}

// Player returns one player's current row
func (h *Host) Player(id int) (protocol.PlayerSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p := h.playerLocked(id); p != nil {
		return p.Snapshot(), true
	}
	return protocol.PlayerSnapshot{}, false
}
