package world

import (
	"math"
	"testing"

	"grapple-arena/internal/geom"
)

func TestGenerateDeterministic(t *testing.T) {
	for _, seed := range []int64{0, 1, 12345, 999999} {
		a := Generate(seed, DefaultSize, DefaultDensity)
		b := Generate(seed, DefaultSize, DefaultDensity)
		if !a.Equal(b) {
			t.Errorf("seed %d: maps differ", seed)
		}
	}
}

func TestGenerateDifferentSeeds(t *testing.T) {
	a := Generate(10001, DefaultSize, DefaultDensity)
	b := Generate(10002, DefaultSize, DefaultDensity)
	if a.Equal(b) {
		t.Error("different seeds should produce different maps")
	}
}

func TestGenerateShape(t *testing.T) {
	w := Generate(4242, DefaultSize, DefaultDensity)
	// ceil(15*15*0.1) = 23 random lines plus 4 border lines
	if w.Len() != 27 {
		t.Fatalf("expected 27 lines, got %d", w.Len())
	}
	lines := w.Lines()
	for i, l := range lines[:len(lines)-4] {
		if l.P1.Equal(l.P2) {
			t.Errorf("line %d is degenerate", i)
		}
		for _, p := range []geom.Vec2{l.P1, l.P2} {
			if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
				t.Errorf("line %d leaves the unit square: %+v", i, l)
			}
		}
		if math.Abs(l.P1.X-l.P2.X) > 1.0/DefaultSize+1e-9 || math.Abs(l.P1.Y-l.P2.Y) > 1.0/DefaultSize+1e-9 {
			t.Errorf("line %d spans more than one grid step: %+v", i, l)
		}
		if l.P1.Y == l.P2.Y && l.P1.X > l.P2.X {
			t.Errorf("horizontal line %d not normalized: %+v", i, l)
		}
	}
	border := lines[len(lines)-4:]
	for i, want := range Border() {
		if !border[i].Equal(want) {
			t.Errorf("border %d = %+v, want %+v", i, border[i], want)
		}
	}
}

func TestLinesIsCopy(t *testing.T) {
	w := Generate(7, DefaultSize, DefaultDensity)
	lines := w.Lines()
	lines[0] = geom.Line{}
	if w.Lines()[0].Equal(geom.Line{}) {
		t.Error("mutating Lines() result changed the world")
	}
}

func horizontal() *World {
	return New(1, []geom.Line{{P1: geom.V(0.2, 0.5), P2: geom.V(0.4, 0.5)}})
}

func TestCollisionCrossing(t *testing.T) {
	w := horizontal()
	if _, hit := w.CheckCollision(geom.V(0.3, 0.55), geom.V(0.3, 0.45)); !hit {
		t.Error("downward sweep through the segment should collide")
	}
	if _, hit := w.CheckCollision(geom.V(0.3, 0.45), geom.V(0.3, 0.55)); !hit {
		t.Error("upward sweep through the segment should collide")
	}
}

func TestCollisionNoMovement(t *testing.T) {
	w := horizontal()
	if _, hit := w.CheckCollision(geom.V(0.3, 0.45), geom.V(0.3, 0.45)); hit {
		t.Error("stationary point should not collide")
	}
}

func TestCollisionOutsideSegment(t *testing.T) {
	w := horizontal()
	// crosses the infinite line beyond each endpoint
	if _, hit := w.CheckCollision(geom.V(0.5, 0.51), geom.V(0.5, 0.49)); hit {
		t.Error("crossing beyond p2 should not collide")
	}
	if _, hit := w.CheckCollision(geom.V(0.1, 0.51), geom.V(0.1, 0.49)); hit {
		t.Error("crossing before p1 should not collide")
	}
	// same side both ticks
	if _, hit := w.CheckCollision(geom.V(0.3, 0.49), geom.V(0.31, 0.48)); hit {
		t.Error("moving along one side should not collide")
	}
}

func TestCollisionLeftwardLine(t *testing.T) {
	w := New(1, []geom.Line{{P1: geom.V(0.4, 0.5), P2: geom.V(0.2, 0.5)}})
	if _, hit := w.CheckCollision(geom.V(0.3, 0.55), geom.V(0.3, 0.45)); !hit {
		t.Error("right-to-left segment should still collide")
	}
}

func TestCollisionBorder(t *testing.T) {
	w := New(1, Border())
	l, hit := w.CheckCollision(geom.V(1.001, 0.5), geom.V(0.999, 0.5))
	if !hit {
		t.Fatal("leaving through the right border should collide")
	}
	if !l.Equal(Border()[3]) {
		t.Errorf("expected right border, got %+v", l)
	}
}

func TestCollisionFirstInMapOrder(t *testing.T) {
	a := geom.Line{P1: geom.V(0.2, 0.5), P2: geom.V(0.4, 0.5)}
	b := geom.Line{P1: geom.V(0.2, 0.51), P2: geom.V(0.4, 0.51)}
	w := New(1, []geom.Line{b, a})
	l, hit := w.CheckCollision(geom.V(0.3, 0.55), geom.V(0.3, 0.45))
	if !hit || !l.Equal(b) {
		t.Errorf("expected first line in map order, got %+v hit=%v", l, hit)
	}
}

func TestClosestPoint(t *testing.T) {
	w := New(1, []geom.Line{
		{P1: geom.V(0.1, 0.1), P2: geom.V(0.2, 0.1)},
		{P1: geom.V(0.5, 0.5), P2: geom.V(0.6, 0.6)},
	})
	p, d, ok := w.ClosestPoint(geom.V(0.52, 0.5), nil)
	if !ok || !p.Equal(geom.V(0.5, 0.5)) {
		t.Fatalf("expected (0.5,0.5), got %+v ok=%v", p, ok)
	}
	if math.Abs(d-0.02) > 1e-9 {
		t.Errorf("expected distance 0.02, got %f", d)
	}

	skip := geom.V(0.5, 0.5)
	p, _, ok = w.ClosestPoint(geom.V(0.52, 0.5), func(c geom.Vec2) bool { return !c.Equal(skip) })
	if !ok || !p.Equal(geom.V(0.6, 0.6)) {
		t.Errorf("expected excluded point to be skipped, got %+v", p)
	}

	_, _, ok = w.ClosestPoint(geom.V(0, 0), func(geom.Vec2) bool { return false })
	if ok {
		t.Error("expected no admissible point")
	}
}
