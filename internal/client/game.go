package client

import (
	"context"
	"math"
	"sync"
	"time"

	"grapple-arena/internal/geom"
	"grapple-arena/internal/logger"
	"grapple-arena/internal/protocol"
	"grapple-arena/internal/sim"
	"grapple-arena/internal/world"
)

const (
	ViewHeight   = 0.2 // world units visible vertically
	cameraFollow = 8.0 // how fast the camera catches up, per second
)

// InputSource is whatever captures the local player's controls
type InputSource interface {
	Turn() float64     // -1 left .. 1 right
	Throttle() float64 // -1 brake .. 1 accelerate
	Aim() float64      // look angle, radians
	Grabbing() bool
	Shooting() bool
	Detonating() bool
}

// Transport sends peer messages and knows this participant's id
type Transport interface {
	Send(msg protocol.Message, to int)
	ID() int
}

type Config struct {
	FrameRate  int // prediction frames per second
	ClientRate int // input messages per second
	Aspect     float64
	MapSize    int
	MapDensity float64
}

func DefaultConfig() Config {
	return Config{
		FrameRate:  60,
		ClientRate: 30,
		Aspect:     16.0 / 9.0,
		MapSize:    world.DefaultSize,
		MapDensity: world.DefaultDensity,
	}
}

// Game is one participant's view of the match: it predicts every player locally
// and corrects them from the host's snapshots.
type Game struct {
	cfg   Config
	net   Transport
	input InputSource
	log   *logger.Logger
	now   func() time.Time

	mu         sync.Mutex
	players    []*sim.Player
	world      *world.World
	seed       int64
	explosions []sim.Explosion
	view       geom.Rect

	// input accumulated since the last send
	accX, accY, accTime float64
	shootHeld           bool
	shootLatch          bool
	detonateLatch       bool
	grabbing            bool
	handle              geom.Vec2
	haveHandle          bool
}

func New(cfg Config, net Transport, input InputSource, log *logger.Logger) *Game {
	def := DefaultConfig()
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.ClientRate <= 0 {
		cfg.ClientRate = def.ClientRate
	}
	if cfg.Aspect <= 0 {
		cfg.Aspect = def.Aspect
	}
	if cfg.MapSize <= 0 {
		cfg.MapSize = def.MapSize
	}
	if cfg.MapDensity <= 0 {
		cfg.MapDensity = def.MapDensity
	}
	g := &Game{
		cfg:   cfg,
		net:   net,
		input: input,
		log:   logger.OrDefault(log),
		now:   time.Now,
	}
	g.view = geom.Rect{W: ViewHeight * cfg.Aspect, H: ViewHeight}
	g.view.SetMid(geom.V(0.5, 0.5))
	return g
}

// Run drives prediction frames and input sends until ctx is done
func (g *Game) Run(ctx context.Context) {
	frames := time.NewTicker(time.Second / time.Duration(g.cfg.FrameRate))
	defer frames.Stop()
	sends := time.NewTicker(time.Second / time.Duration(g.cfg.ClientRate))
	defer sends.Stop()

	last := g.now()
	for {
		select {
		case <-frames.C:
			now := g.now()
			g.Frame(float64(now.Sub(last)) / float64(time.Millisecond))
			last = now
		case <-sends.C:
			g.SendInput()
		case <-ctx.Done():
			return
		}
	}
}

// Frame runs one prediction step of dt milliseconds
func (g *Game) Frame(dt float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dts := dt / 1000

	for _, p := range g.players {
		p.Update(dt, g.world, false)
	}

	if g.input != nil {
		g.accX += g.input.Turn() * dts
		g.accY += g.input.Throttle() * dts
		g.accTime += dts
		shooting := g.input.Shooting()
		if shooting && !g.shootHeld {
			g.shootLatch = true
		}
		g.shootHeld = shooting
		if g.input.Detonating() {
			g.detonateLatch = true
		}
		g.grabbing = g.input.Grabbing()
	}

	me := g.playerLocked(g.net.ID())
	if me != nil {
		g.haveHandle = false
		if g.world != nil {
			g.handle, _, g.haveHandle = me.ClosestHandle(g.world)
		}
		me.TakeInput(g.inputLocked(false), true)

		follow := math.Min(1, cameraFollow*dts)
		g.view.SetMid(g.view.Middle().Lerp(me.Pos, follow))
	}

	kept := g.explosions[:0]
	for _, e := range g.explosions {
		e.Update(dts)
		if e.Alive() {
			kept = append(kept, e)
		}
	}
	g.explosions = kept
}

// Input packages the input accumulated since the last send. forSend clears the
// accumulators and latched actions.
func (g *Game) Input(forSend bool) protocol.PlayerInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inputLocked(forSend)
}

func (g *Game) inputLocked(forSend bool) protocol.PlayerInput {
	var in protocol.PlayerInput
	if g.accTime > 0 {
		in.InputX = geom.Round(geom.Clamp(g.accX/g.accTime, -1, 1), 2)
		in.InputY = geom.Round(geom.Clamp(g.accY/g.accTime, -1, 1), 2)
	}
	if g.input != nil {
		in.LookAngle = g.input.Aim()
	}
	if g.grabbing {
		me := g.playerLocked(g.net.ID())
		switch {
		case me != nil && me.Swinging:
			pos := me.SwingPos
			in.SwingPos = &pos
		case g.haveHandle:
			pos := g.handle
			in.SwingPos = &pos
		}
	}
	in.Shooting = g.shootLatch
	in.Detonating = g.detonateLatch
	in.NoMap = g.world == nil

	if forSend {
		g.accX, g.accY, g.accTime = 0, 0, 0
		g.shootLatch = false
		g.detonateLatch = false
	}
	return in
}

// SendInput sends the accumulated input to the host
func (g *Game) SendInput() {
	in := g.Input(true)
	g.net.Send(in, protocol.HostID)
}

// HandleMessage processes one message from the host
func (g *Game) HandleMessage(msg protocol.Message, from int) {
	switch m := msg.(type) {
	case protocol.WorldData:
		g.mu.Lock()
		if g.world == nil || g.seed != m.Seed {
			g.seed = m.Seed
			g.world = world.Generate(m.Seed, g.cfg.MapSize, g.cfg.MapDensity)
			g.log.Printf("map seed=%d (%d lines)", m.Seed, g.world.Len())
		}
		g.mu.Unlock()
	case protocol.GameState:
		g.reconcile(m.Players)
		g.net.Send(protocol.Pong{Frame: m.Frame}, protocol.HostID)
	default:
		g.log.Printf("ignoring %s from %d", msg.Type(), from)
	}
}

// reconcile overwrites local predictions with the host's rows. The local player
// keeps its own aim.
func (g *Game) reconcile(rows []protocol.PlayerSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	myID := g.net.ID()

	next := make([]*sim.Player, 0, len(rows))
	for _, row := range rows {
		p := g.playerLocked(row.ID)
		if p == nil {
			p = sim.FromSnapshot(row, g.explode)
		} else {
			look := p.LookAngle
			p.NetworkUpdate(row)
			if row.ID == myID {
				p.LookAngle = look
			}
		}
		next = append(next, p)
	}
	g.players = next
}

// explode is the client's explosion callback: it records the effect for drawing
// and pushes everyone locally until the host's next snapshot.
func (g *Game) explode(_ *sim.Player, at geom.Vec2) {
	g.explosions = append(g.explosions, sim.Explosion{Pos: at})
	for _, p := range g.players {
		p.ImpulseFrom(at, sim.ExplosionRadius, sim.ExplosionSpeed, sim.ExplosionDamage)
	}
}

func (g *Game) playerLocked(id int) *sim.Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// SetAspect resizes the camera to width/height ratio a
func (g *Game) SetAspect(a float64) {
	if a <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	mid := g.view.Middle()
	g.view.W = ViewHeight * a
	g.view.SetMid(mid)
}

func (g *Game) View() geom.Rect {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view
}

func (g *Game) Explosions() []sim.Explosion {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sim.Explosion(nil), g.explosions...)
}

// Players returns the local roster as snapshot rows
func (g *Game) Players() []protocol.PlayerSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]protocol.PlayerSnapshot, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p.Snapshot())
	}
	return out
}

func (g *Game) Player(id int) (protocol.PlayerSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.playerLocked(id); p != nil {
		return p.Snapshot(), true
	}
	return protocol.PlayerSnapshot{}, false
}

// World is nil until the host has sent a map
func (g *Game) World() *world.World {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.world
}
