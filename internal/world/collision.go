package world

import (
	"math"

	"grapple-arena/internal/geom"
)

// cross returns the 2D cross product of (b-a) and (p-a). Its sign tells which
// side of the infinite line through a and b the point p lies on.
func cross(a, b, p geom.Vec2) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

// Side returns -1, 0 or 1 for the side of line l that pos lies on
func Side(l geom.Line, pos geom.Vec2) float64 {
	return geom.Sign(cross(l.P1, l.P2, pos))
}

// crosses reports whether moving from prev to cur passes through segment l.
// Leaving the line is not a crossing; arriving on it is.
func crosses(l geom.Line, cur, prev geom.Vec2) bool {
	c1 := cross(l.P1, l.P2, prev)
	c2 := cross(l.P1, l.P2, cur)
	if c1 == 0 || c1*c2 > 0 {
		return false
	}
	// where the sweep meets the infinite line, measured along the segment
	t := c1 / (c1 - c2)
	hit := prev.Lerp(cur, t)
	length := l.Len()
	if length == 0 {
		return false
	}
	dir := l.P2.Sub(l.P1)
	along := (hit.X-l.P1.X)*dir.X + (hit.Y-l.P1.Y)*dir.Y
	along /= length
	return along >= 0 && along <= length
}

// CheckCollision returns the first segment, in map order, crossed by a point moving from prev to cur.
func (w *World) CheckCollision(cur, prev geom.Vec2) (geom.Line, bool) {
	var buf [32]int
	sweep := geom.BoundsOf(prev, cur)
	for _, idx := range w.grid.queryBuf(sweep, buf[:0]) {
		l := w.lines[idx]
		if !l.Bounds(geom.DefaultLineMargin).Overlaps(sweep) {
			continue
		}
		if crosses(l, cur, prev) {
			return l, true
		}
	}
	return geom.Line{}, false
}

// ClosestPoint scans every segment endpoint and returns the nearest one to pos that
// admissible accepts (nil accepts all), together with its distance.
func (w *World) ClosestPoint(pos geom.Vec2, admissible func(geom.Vec2) bool) (geom.Vec2, float64, bool) {
	best := math.Inf(1)
	var bestPos geom.Vec2
	found := false
	consider := func(p geom.Vec2) {
		d := pos.DistSqTo(p)
		if d >= best {
			return
		}
		if admissible != nil && !admissible(p) {
			return
		}
		best, bestPos, found = d, p, true
	}
	for _, l := range w.lines {
		consider(l.P1)
		consider(l.P2)
	}
	if !found {
		return geom.Vec2{}, 0, false
	}
	return bestPos, math.Sqrt(best), true
}
