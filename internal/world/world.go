package world

import (
	"grapple-arena/internal/geom"
)

const (
	DefaultSize    = 15
	DefaultDensity = 0.1
)

// World is an immutable map of line segments inside the unit square
type World struct {
	seed  int64
	lines []geom.Line
	grid  lineGrid
}

// Generate builds the map for seed. The same (seed, size, density) always yields
// the same segments in the same order.
func Generate(seed int64, size int, density float64) *World {
	if size < 1 {
		size = DefaultSize
	}
	rng := geom.NewLCG(seed)
	s := float64(size)
	count := s * s * density

	var lines []geom.Line
	for i := 0; float64(i) < count; i++ {
		var x1, y1, x2, y2 int
		for {
			x1 = rng.IntRange(0, size)
			y1 = rng.IntRange(0, size)
			x2 = x1 + rng.IntRange(-1, 1)
			y2 = y1 + rng.IntRange(-1, 1)
			if x1 == x2 && y1 == y2 {
				continue
			}
			if x2 < 0 || x2 > size || y2 < 0 || y2 > size {
				continue
			}
			break
		}
		// horizontal lines always run left to right
		if y1 == y2 && x1 > x2 {
			x1, x2 = x2, x1
		}
		lines = append(lines, geom.Line{
			P1: geom.V(float64(x1)/s, float64(y1)/s),
			P2: geom.V(float64(x2)/s, float64(y2)/s),
		})
	}

	lines = append(lines, Border()...)
	return New(seed, lines)
}

// Border returns the four segments enclosing the unit square
func Border() []geom.Line {
	return []geom.Line{
		{P1: geom.V(0, 0), P2: geom.V(1, 0)},
		{P1: geom.V(0, 1), P2: geom.V(1, 1)},
		{P1: geom.V(0, 0), P2: geom.V(0, 1)},
		{P1: geom.V(1, 0), P2: geom.V(1, 1)},
	}
}

// New builds a world from explicit segments. The slice is copied.
func New(seed int64, lines []geom.Line) *World {
	w := &World{seed: seed, lines: append([]geom.Line(nil), lines...)}
	for i, l := range w.lines {
		w.grid.insert(l.Bounds(geom.DefaultLineMargin), i)
	}
	return w
}

func (w *World) Seed() int64 { return w.seed }

func (w *World) Len() int { return len(w.lines) }

// Lines returns a copy of the segments in generation order
func (w *World) Lines() []geom.Line {
	return append([]geom.Line(nil), w.lines...)
}

// Equal reports whether both worlds hold the same segments in the same order
func (w *World) Equal(o *World) bool {
	if w == nil || o == nil {
		return w == o
	}
	if len(w.lines) != len(o.lines) {
		return false
	}
	for i := range w.lines {
		if !w.lines[i].Equal(o.lines[i]) {
			return false
		}
	}
	return true
}
