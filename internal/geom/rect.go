package geom

import "math"

// Rect is an axis-aligned rectangle in world units
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) NW() Vec2     { return Vec2{r.X, r.Y} }
func (r Rect) NE() Vec2     { return Vec2{r.X + r.W, r.Y} }
func (r Rect) SW() Vec2     { return Vec2{r.X, r.Y + r.H} }
func (r Rect) SE() Vec2     { return Vec2{r.X + r.W, r.Y + r.H} }
func (r Rect) Middle() Vec2 { return Vec2{r.X + r.W/2, r.Y + r.H/2} }

// SetMid moves the rect so its centre is at pos
func (r *Rect) SetMid(pos Vec2) {
	r.X = pos.X - r.W/2
	r.Y = pos.Y - r.H/2
}

// Contains reports whether pos lies strictly inside r
func (r Rect) Contains(pos Vec2) bool {
	return pos.X > r.X && pos.X < r.X+r.W && pos.Y > r.Y && pos.Y < r.Y+r.H
}

// Overlaps reports whether the two rects share any area or edge
func (r Rect) Overlaps(o Rect) bool {
	return r.X <= o.X+o.W && o.X <= r.X+r.W && r.Y <= o.Y+o.H && o.Y <= r.Y+r.H
}

// BoundsOf returns the smallest rect containing both points
func BoundsOf(a, b Vec2) Rect {
	x1, y1 := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
	x2, y2 := math.Max(a.X, b.X), math.Max(a.Y, b.Y)
	return Rect{x1, y1, x2 - x1, y2 - y1}
}

// WorldToView maps r into fractions of view
func (r Rect) WorldToView(view Rect) Rect {
	return Rect{(r.X - view.X) / view.W, (r.Y - view.Y) / view.H, r.W / view.W, r.H / view.H}
}

func (r Rect) ScreenToPixel(w, h float64) Rect {
	return Rect{r.X * w, r.Y * h, r.W * w, r.H * h}
}

func (r Rect) WorldToPixel(view Rect, w, h float64) Rect {
	return r.WorldToView(view).ScreenToPixel(w, h)
}
