package sim

import "grapple-arena/internal/geom"

// Explosion is a short lived client-side effect. It has no authority over anything.
type Explosion struct {
	Pos geom.Vec2
	Age float64 // seconds
}

func (e *Explosion) Update(dts float64) { e.Age += dts }

func (e *Explosion) Alive() bool { return e.Age < ExplosionLifetime }
