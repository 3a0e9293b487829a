package geom

import "math"

// DefaultLineMargin pads line bounding boxes for the collision broad phase
const DefaultLineMargin = 0.01

// Line is a segment between two world points
type Line struct {
	P1 Vec2 `json:"p1" msgpack:"p1"`
	P2 Vec2 `json:"p2" msgpack:"p2"`
}

// Angle is the direction from P1 to P2
func (l Line) Angle() float64 { return l.P1.AngleTo(l.P2) }

func (l Line) Len() float64 { return l.P1.DistTo(l.P2) }

// Bounds returns the outer bounding rect of the line, grown by margin on every side
func (l Line) Bounds(margin float64) Rect {
	x1 := math.Min(l.P1.X, l.P2.X) - margin
	y1 := math.Min(l.P1.Y, l.P2.Y) - margin
	x2 := math.Max(l.P1.X, l.P2.X) + margin
	y2 := math.Max(l.P1.Y, l.P2.Y) + margin
	return Rect{x1, y1, x2 - x1, y2 - y1}
}

func (l Line) Equal(o Line) bool {
	return l.P1.Equal(o.P1) && l.P2.Equal(o.P2)
}
