package geom

import "math"

// Vec2 is a point or direction in world units. The world is the unit square.
type Vec2 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// V is shorthand for Vec2{x, y}
func V(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

// FromAngle returns a vector of length l pointing along angle a
func FromAngle(a, l float64) Vec2 {
	return Vec2{math.Cos(a) * l, math.Sin(a) * l}
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale multiplies both components by s
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Mul multiplies component-wise
func (v Vec2) Mul(o Vec2) Vec2 { return Vec2{v.X * o.X, v.Y * o.Y} }

func (v Vec2) Len() float64   { return math.Sqrt(v.X*v.X + v.Y*v.Y) }
func (v Vec2) LenSq() float64 { return v.X*v.X + v.Y*v.Y }

// Normalize returns a unit vector in the same direction. The zero vector stays zero.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

func (v Vec2) DistTo(o Vec2) float64   { return o.Sub(v).Len() }
func (v Vec2) DistSqTo(o Vec2) float64 { return o.Sub(v).LenSq() }

// Angle is the heading of v from the origin
func (v Vec2) Angle() float64 { return math.Atan2(v.Y, v.X) }

// AngleTo is the heading from v towards o
func (v Vec2) AngleTo(o Vec2) float64 { return math.Atan2(o.Y-v.Y, o.X-v.X) }

// Lerp returns v at n=0 and o at n=1
func (v Vec2) Lerp(o Vec2, n float64) Vec2 {
	return Vec2{Lerp(v.X, o.X, n), Lerp(v.Y, o.Y, n)}
}

func (v Vec2) Equal(o Vec2) bool { return v.X == o.X && v.Y == o.Y }

// WorldToView maps a world position into view fractions (0-1 across the view rect)
func (v Vec2) WorldToView(view Rect) Vec2 {
	return Vec2{(v.X - view.X) / view.W, (v.Y - view.Y) / view.H}
}

// ViewToWorld is the inverse of WorldToView
func (v Vec2) ViewToWorld(view Rect) Vec2 {
	return Vec2{view.X + v.X*view.W, view.Y + v.Y*view.H}
}

// ScreenToPixel maps a 0-1 screen fraction to pixels on a w×h surface
func (v Vec2) ScreenToPixel(w, h float64) Vec2 {
	return Vec2{ScaleNumber(v.X, 0, 1, 0, w, false), ScaleNumber(v.Y, 0, 1, 0, h, false)}
}

// PixelToScreen maps pixels on a w×h surface to 0-1 screen fractions
func (v Vec2) PixelToScreen(w, h float64) Vec2 {
	return Vec2{ScaleNumber(v.X, 0, w, 0, 1, false), ScaleNumber(v.Y, 0, h, 0, 1, false)}
}

func (v Vec2) WorldToPixel(view Rect, w, h float64) Vec2 {
	return v.WorldToView(view).ScreenToPixel(w, h)
}

func (v Vec2) PixelToWorld(view Rect, w, h float64) Vec2 {
	return v.PixelToScreen(w, h).ViewToWorld(view)
}
