package main

import (
	"context"
	"flag"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"grapple-arena/internal/client"
	"grapple-arena/internal/config"
	"grapple-arena/internal/host"
	"grapple-arena/internal/logger"
	"grapple-arena/internal/netpeer"
	"grapple-arena/internal/node"
	"grapple-arena/internal/protocol"
)

const statusInterval = 5 * time.Second

// bot steers the local player around the arena so a headless participant has
// something to play with
type bot struct {
	mu    sync.Mutex
	start time.Time
	phase float64
}

func newBot() *bot {
	return &bot{start: time.Now(), phase: rand.Float64() * 2 * math.Pi}
}

func (b *bot) t() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.start).Seconds() + b.phase
}

func (b *bot) Turn() float64     { return math.Sin(b.t() * 0.7) }
func (b *bot) Throttle() float64 { return 0.5 + 0.5*math.Sin(b.t()*0.3) }
func (b *bot) Aim() float64      { return math.Mod(b.t()*0.9, 2*math.Pi) }
func (b *bot) Grabbing() bool    { return math.Mod(b.t(), 6) < 2 }
func (b *bot) Shooting() bool    { return math.Mod(b.t(), 3) < 0.1 }
func (b *bot) Detonating() bool  { return math.Mod(b.t(), 3) > 1.5 && math.Mod(b.t(), 3) < 1.6 }

func main() {
	cfg := config.Load()
	relayURL := flag.String("relay", cfg.RelayURL, "relay websocket URL")
	join := flag.Int("join", 0, "id of the participant to join")
	public := flag.Bool("public", false, "host immediately and list the game publicly")
	name := flag.String("name", "", "public game name")
	mode := flag.String("mode", "", "public game mode")
	flag.Parse()

	log := logger.New("arena")

	codec, err := protocol.CodecByName(cfg.PeerCodec)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	n := node.New(node.Config{
		Net: netpeer.Config{
			Timeout: cfg.PeerTimeout,
			Codec:   codec,
			Links:   netpeer.WebRTCFactory(cfg.STUNURL),
		},
		Host: host.Config{
			PhysicsRate:     cfg.PhysicsRate,
			NetworkRate:     cfg.NetworkRate,
			RoundLength:     cfg.RoundLength,
			MaxPhysicsStep:  cfg.MaxPhysicsStep,
			ValidateAnchors: cfg.ValidateAnchors,
		},
		Game: client.Config{
			FrameRate:  cfg.FrameRate,
			ClientRate: cfg.ClientRate,
		},
		Name: *name,
		Mode: *mode,
	}, newBot(), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n.Networking().OnDisconnect(func(err error) {
		log.Printf("relay gone: %v", err)
		stop()
	})

	if err := n.Start(ctx, *relayURL); err != nil {
		log.Printf("start: %v", err)
		os.Exit(1)
	}
	defer n.Stop()
	log.Printf("connected to %s as %d", *relayURL, n.ID())

	switch {
	case *join != 0:
		if err := n.Join(*join); err != nil {
			log.Printf("join %d: %v", *join, err)
			os.Exit(1)
		}
	case *public:
		n.HostNow()
		if err := n.SetPublic(true); err != nil {
			log.Printf("set public: %v", err)
		}
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			status(log, n)
		case <-ctx.Done():
			log.Println("Shutting down...")
			return
		}
	}
}

func status(log *logger.Logger, n *node.Node) {
	g := n.Game()
	seed := int64(0)
	if w := g.World(); w != nil {
		seed = w.Seed()
	}
	me, ok := g.Player(n.ID())
	if !ok {
		log.Printf("id=%d hosting=%v seed=%d players=%d (not spawned)", n.ID(), n.Hosting(), seed, len(g.Players()))
		return
	}
	log.Printf("id=%d hosting=%v seed=%d players=%d pos=(%.3f,%.3f) health=%.0f ping=%.0fms",
		n.ID(), n.Hosting(), seed, len(g.Players()), me.X, me.Y, me.Health, me.Ping)
}
