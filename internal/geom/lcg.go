package geom

// LCG is a seeded linear congruential generator (Numerical Recipes constants, modulus 2^32).
// Map generation depends on its exact sequence, so the constants must never change.
type LCG struct {
	state uint32
}

const (
	lcgMul = 1664525
	lcgInc = 1013904223
)

// NewLCG seeds a generator. Seeds are folded to 32 bits.
func NewLCG(seed int64) *LCG {
	return &LCG{state: uint32(seed) ^ uint32(seed>>32)}
}

// Uint32 advances the generator
func (g *LCG) Uint32() uint32 {
	g.state = g.state*lcgMul + lcgInc
	return g.state
}

// Float64 returns a value in [0, 1)
func (g *LCG) Float64() float64 {
	return float64(g.Uint32()) / (1 << 32)
}

// IntRange returns an integer in [min, max] inclusive
func (g *LCG) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(g.Float64()*float64(max-min+1))
}
