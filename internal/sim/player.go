package sim

import (
	"math"

	"grapple-arena/internal/geom"
	"grapple-arena/internal/protocol"
	"grapple-arena/internal/world"
)

// ExplosionFunc is called when a player's bullet goes off. The owner of the Player
// (host or client) decides who gets pushed and how hard.
type ExplosionFunc func(owner *Player, at geom.Vec2)

// Cooldown is a released anchor that cannot be grabbed again until Remaining hits zero
type Cooldown struct {
	Pos       geom.Vec2
	Remaining float64 // seconds
}

// Player is simulated by the host for real and by every client as a prediction
type Player struct {
	ID      int
	Pos     geom.Vec2
	LastPos geom.Vec2 // position before the current tick, for the collision sweep
	Speed   float64   // signed, map widths per second
	Angle   float64   // heading, radians

	InputX float64 // turn, [-1, 1]
	InputY float64 // throttle or brake, [-1, 1]

	Swinging      bool
	SwingPos      geom.Vec2
	SwingDist     float64
	RecentlySwung []Cooldown

	BulletAlive    bool
	BulletPos      geom.Vec2
	LastBulletPos  geom.Vec2
	BulletAngle    float64
	BulletAge      float64
	NetBulletAlive bool // the host has confirmed this bullet in a snapshot

	Health       float64
	HealthSmooth float64 // lags Health, for display
	DamageTime   float64 // seconds since last damage

	Ping      float64 // round trip in ms, measured by the host
	LookAngle float64

	wasSwinging    bool // swinging on the previous tick
	wasNetSwinging bool // swinging in the previous snapshot
	bulletSpent    bool // bullet went off locally but the host has not caught up yet
	onExplosion    ExplosionFunc
}

// NewPlayer creates a player at the origin with full health
func NewPlayer(id int, onExplosion ExplosionFunc) *Player {
	return &Player{
		ID:           id,
		Health:       MaxHealth,
		HealthSmooth: MaxHealth,
		DamageTime:   RegenDelay,
		onExplosion:  onExplosion,
	}
}

// NewRandomPlayer creates a player somewhere on the map
func NewRandomPlayer(id int, onExplosion ExplosionFunc) *Player {
	p := NewPlayer(id, onExplosion)
	p.Reset()
	return p
}

// FromSnapshot materializes a player the client has not seen before
func FromSnapshot(snap protocol.PlayerSnapshot, onExplosion ExplosionFunc) *Player {
	p := NewPlayer(snap.ID, onExplosion)
	p.NetworkUpdate(snap)
	p.LastPos = p.Pos
	p.HealthSmooth = p.Health
	return p
}

// Reset puts the player back at a random spot with full health.
// Identity and the explosion callback are kept.
func (p *Player) Reset() {
	p.Pos = geom.V(geom.RandRange(0, 1), geom.RandRange(0, 1))
	p.LastPos = p.Pos
	p.Speed = 0
	p.Angle = geom.RandRange(-math.Pi, math.Pi)
	p.InputX, p.InputY = 0, 0

	p.Swinging = false
	p.wasSwinging = false
	p.wasNetSwinging = false
	p.RecentlySwung = nil

	p.BulletAlive = false
	p.NetBulletAlive = false
	p.bulletSpent = false
	p.BulletAge = 0

	p.Health = MaxHealth
	p.HealthSmooth = MaxHealth
	p.DamageTime = RegenDelay
}

// Update advances the player by dt milliseconds. authoritative is true on the host;
// only the host regenerates health.
func (p *Player) Update(dt float64, w *world.World, authoritative bool) {
	dts := dt / 1000
	if dts <= 0 {
		return
	}
	p.LastPos = p.Pos

	if p.Swinging {
		p.swing(dts)
	} else {
		p.tickCooldowns(dts)
		p.drive(dts)
	}

	if w != nil {
		if line, hit := w.CheckCollision(p.Pos, p.LastPos); hit {
			p.bounce(line)
		}
	}

	p.updateBullet(dts, w)
	p.updateHealth(dts, authoritative)
}

// swing moves the player around SwingPos on a circle of radius SwingDist
func (p *Player) swing(dts float64) {
	p.Speed += p.InputY * dts * SwingAccel

	rel := p.Pos.Sub(p.SwingPos)
	next := rel.Add(geom.FromAngle(p.Angle, p.Speed*dts))
	clamped := next.Normalize().Scale(p.SwingDist)
	moved := clamped.Sub(rel)

	// only on the first tick, afterwards rotation would bleed speed
	if !p.wasSwinging {
		p.Speed = moved.Len() / dts
	}
	if moved.LenSq() > 0 {
		p.Angle = moved.Angle()
	}
	p.Pos = p.SwingPos.Add(clamped)
	p.wasSwinging = true
}

func (p *Player) drive(dts float64) {
	if p.InputY >= 0 {
		p.Speed += p.InputY * dts * Accel
		p.Angle += p.InputX * dts * Turn
	} else {
		p.Speed += p.InputY * dts * Brake
		p.Angle += p.InputX * dts * (Turn + BrakeTurn)
	}
	p.Speed *= 1 - Drag*dts
	p.Pos = p.Pos.Add(geom.FromAngle(p.Angle, p.Speed*dts))
	p.wasSwinging = false
}

func (p *Player) tickCooldowns(dts float64) {
	kept := p.RecentlySwung[:0]
	for _, c := range p.RecentlySwung {
		c.Remaining -= dts
		if c.Remaining > 0 {
			kept = append(kept, c)
		}
	}
	p.RecentlySwung = kept
}

// bounce undoes the move into line and reflects the heading off it
func (p *Player) bounce(line geom.Line) {
	p.Pos = p.LastPos
	p.Speed *= WallBounce
	normal := line.Angle() - world.Side(line, p.Pos)*math.Pi/2
	p.Angle = geom.NormalizeAngle(2*normal - p.Angle + math.Pi)
}

func (p *Player) updateBullet(dts float64, w *world.World) {
	if !p.BulletAlive {
		return
	}
	p.LastBulletPos = p.BulletPos
	p.BulletPos = p.BulletPos.Add(geom.FromAngle(p.BulletAngle, BulletSpeed*dts))
	p.BulletAge += dts

	hit := false
	if w != nil {
		_, hit = w.CheckCollision(p.BulletPos, p.LastBulletPos)
	}
	if hit || p.BulletAge > BulletLifetime {
		p.bulletSpent = p.NetBulletAlive
		p.detonate()
	}
}

func (p *Player) detonate() {
	p.BulletAlive = false
	if p.onExplosion != nil {
		p.onExplosion(p, p.BulletPos)
	}
}

func (p *Player) updateHealth(dts float64, authoritative bool) {
	p.DamageTime += dts
	if authoritative && p.DamageTime > RegenDelay && p.Health < MaxHealth {
		p.Health = math.Min(MaxHealth, p.Health+RegenRate*dts)
	}
	p.HealthSmooth += (p.Health - p.HealthSmooth) * math.Min(1, HealthSmoothing*dts)
}

// TakeInput applies one input message. Shooting and detonating only happen when
// localPrediction is false, so a predicting client never fires twice.
func (p *Player) TakeInput(in protocol.PlayerInput, localPrediction bool) {
	p.InputX = geom.Clamp(in.InputX, -1, 1)
	p.InputY = geom.Clamp(in.InputY, -1, 1)
	p.LookAngle = in.LookAngle

	if in.SwingPos != nil {
		if !p.Swinging {
			p.SwingPos = *in.SwingPos
			p.SwingDist = p.Pos.DistTo(p.SwingPos)
			p.Swinging = true
			p.wasSwinging = false
		}
	} else if p.Swinging {
		p.addCooldown(p.SwingPos)
		p.Swinging = false
	}

	if localPrediction {
		return
	}
	if in.Shooting && !p.BulletAlive {
		p.BulletAlive = true
		p.BulletPos = p.Pos
		p.LastBulletPos = p.Pos
		p.BulletAngle = p.LookAngle
		p.BulletAge = 0
	}
	if in.Detonating && p.BulletAlive {
		p.detonate()
	}
}

func (p *Player) addCooldown(pos geom.Vec2) {
	for i := range p.RecentlySwung {
		if p.RecentlySwung[i].Pos.Equal(pos) {
			p.RecentlySwung[i].Remaining = SwingCooldown
			return
		}
	}
	p.RecentlySwung = append(p.RecentlySwung, Cooldown{Pos: pos, Remaining: SwingCooldown})
}

// RecentlySwungAt reports whether pos is still cooling down
func (p *Player) RecentlySwungAt(pos geom.Vec2) bool {
	for _, c := range p.RecentlySwung {
		if c.Pos.Equal(pos) {
			return true
		}
	}
	return false
}

// ClosestHandle is the nearest line endpoint the player may grab
func (p *Player) ClosestHandle(w *world.World) (geom.Vec2, float64, bool) {
	if w == nil {
		return geom.Vec2{}, 0, false
	}
	return w.ClosestPoint(p.Pos, func(c geom.Vec2) bool { return !p.RecentlySwungAt(c) })
}

// ImpulseFrom pushes the player away from epicenter and applies damage, both falling
// off linearly to zero at radius. Dropping to zero health resets the player.
func (p *Player) ImpulseFrom(epicenter geom.Vec2, radius, maxSpeed, maxDamage float64) {
	away := p.Pos.Sub(epicenter)
	dist := away.Len()
	if dist >= radius {
		return
	}
	falloff := geom.ScaleNumber(dist, 0, radius, 1, 0, true)

	v := geom.FromAngle(p.Angle, p.Speed).Add(away.Normalize().Scale(falloff * maxSpeed))
	p.Speed = v.Len()
	if p.Speed > 0 {
		p.Angle = v.Angle()
	}

	dmg := falloff * maxDamage
	if dmg <= 0 {
		return
	}
	p.Health -= dmg
	p.DamageTime = 0
	if p.Health <= 0 {
		p.Reset()
	}
}

// NetworkUpdate overwrites the player with an authoritative snapshot row
func (p *Player) NetworkUpdate(snap protocol.PlayerSnapshot) {
	if snap.ID != p.ID {
		return
	}
	p.Pos = geom.V(snap.X, snap.Y)
	p.Speed = snap.Speed
	p.Angle = snap.Angle
	p.LookAngle = snap.LookAngle
	p.Ping = snap.Ping
	p.Health = geom.Clamp(snap.Health, 0, MaxHealth)

	if snap.SwingPos != nil {
		p.SwingPos = *snap.SwingPos
		p.SwingDist = p.Pos.DistTo(p.SwingPos)
		p.Swinging = true
		p.wasSwinging = true
		p.wasNetSwinging = true
	} else {
		if p.wasNetSwinging {
			p.addCooldown(p.SwingPos)
		}
		p.Swinging = false
		p.wasNetSwinging = false
	}

	if snap.BulletPos != nil {
		if p.bulletSpent {
			return
		}
		p.BulletPos = *snap.BulletPos
		p.LastBulletPos = p.BulletPos
		if snap.BulletAngle != nil {
			p.BulletAngle = *snap.BulletAngle
		}
		if snap.BulletAge != nil {
			p.BulletAge = *snap.BulletAge
		}
		p.BulletAlive = true
		p.NetBulletAlive = true
		return
	}
	p.bulletSpent = false
	if p.NetBulletAlive && p.BulletAlive {
		p.detonate()
	}
	p.NetBulletAlive = false
}

// Snapshot is the player's row in a game-state message
func (p *Player) Snapshot() protocol.PlayerSnapshot {
	s := protocol.PlayerSnapshot{
		ID:        p.ID,
		X:         p.Pos.X,
		Y:         p.Pos.Y,
		Angle:     p.Angle,
		Speed:     p.Speed,
		LookAngle: p.LookAngle,
		Ping:      p.Ping,
		Health:    p.Health,
	}
	if p.Swinging {
		pos := p.SwingPos
		s.SwingPos = &pos
	}
	if p.BulletAlive {
		pos, angle, age := p.BulletPos, p.BulletAngle, p.BulletAge
		s.BulletPos = &pos
		s.BulletAngle = &angle
		s.BulletAge = &age
	}
	return s
}
