package geom

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 1) != 1 {
		t.Error("expected clamp to max")
	}
	if Clamp(-5, 0, 1) != 0 {
		t.Error("expected clamp to min")
	}
	if Clamp(0.5, 0, 1) != 0.5 {
		t.Error("expected value unchanged")
	}
}

func TestScaleNumber(t *testing.T) {
	if got := ScaleNumber(0.5, 0, 1, 0, 200, false); got != 100 {
		t.Errorf("expected 100, got %f", got)
	}
	// reversed output range: distance 0 maps to 1, distance max maps to 0
	if got := ScaleNumber(0.01, 0, 0.04, 1, 0, false); math.Abs(got-0.75) > eps {
		t.Errorf("expected 0.75, got %f", got)
	}
	if got := ScaleNumber(2, 0, 1, 1, 0, true); got != 0 {
		t.Errorf("expected clamped 0, got %f", got)
	}
}

func TestRound(t *testing.T) {
	if got := Round(1.23456, 2); got != 1.23 {
		t.Errorf("expected 1.23, got %f", got)
	}
	if got := Round(-0.005, 2); got != -0.01 && got != 0 {
		t.Errorf("unexpected rounding %f", got)
	}
}

func TestSign(t *testing.T) {
	if Sign(3) != 1 || Sign(-0.1) != -1 || Sign(0) != 0 {
		t.Error("sign mismatch")
	}
}

func TestNormalizeAngle(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{3 * math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{2*math.Pi + 0.5, 0.5},
		{-2*math.Pi - 0.5, -0.5},
	}
	for _, c := range cases {
		if got := NormalizeAngle(c.in); math.Abs(got-c.want) > eps {
			t.Errorf("NormalizeAngle(%f) = %f, want %f", c.in, got, c.want)
		}
	}
}

func TestVectorArithmetic(t *testing.T) {
	a := V(1, 2)
	b := V(3, 5)
	if !a.Add(b).Equal(V(4, 7)) {
		t.Error("add mismatch")
	}
	if !b.Sub(a).Equal(V(2, 3)) {
		t.Error("sub mismatch")
	}
	if !a.Scale(2).Equal(V(2, 4)) {
		t.Error("scale mismatch")
	}
	if !a.Mul(b).Equal(V(3, 10)) {
		t.Error("mul mismatch")
	}
	if math.Abs(V(3, 4).Len()-5) > eps {
		t.Error("len mismatch")
	}
	if math.Abs(V(0, 0).DistTo(V(3, 4))-5) > eps {
		t.Error("dist mismatch")
	}
	if V(0, 0).DistSqTo(V(3, 4)) != 25 {
		t.Error("dist sq mismatch")
	}
}

func TestNormalizeZero(t *testing.T) {
	n := V(0, 0).Normalize()
	if n.X != 0 || n.Y != 0 || math.IsNaN(n.X) {
		t.Errorf("zero vector should stay zero, got %+v", n)
	}
	u := V(10, 0).Normalize()
	if !u.Equal(V(1, 0)) {
		t.Errorf("expected unit x, got %+v", u)
	}
}

func TestAngles(t *testing.T) {
	if math.Abs(V(0, 0).AngleTo(V(0, 1))-math.Pi/2) > eps {
		t.Error("AngleTo mismatch")
	}
	if math.Abs(V(-1, 0).Angle()-math.Pi) > eps {
		t.Error("Angle mismatch")
	}
	f := FromAngle(math.Pi/2, 2)
	if math.Abs(f.X) > eps || math.Abs(f.Y-2) > eps {
		t.Errorf("FromAngle mismatch %+v", f)
	}
}

func TestViewRoundTrip(t *testing.T) {
	view := Rect{X: 0.2, Y: 0.3, W: 0.4, H: 0.2}
	p := V(0.35, 0.37)
	back := p.WorldToView(view).ViewToWorld(view)
	if math.Abs(back.X-p.X) > eps || math.Abs(back.Y-p.Y) > eps {
		t.Errorf("view round trip mismatch: %+v vs %+v", back, p)
	}
	px := p.WorldToPixel(view, 800, 400)
	back = px.PixelToWorld(view, 800, 400)
	if math.Abs(back.X-p.X) > eps || math.Abs(back.Y-p.Y) > eps {
		t.Errorf("pixel round trip mismatch: %+v vs %+v", back, p)
	}
}

func TestRect(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 1, H: 2}
	if !r.Middle().Equal(V(0.5, 1)) {
		t.Error("middle mismatch")
	}
	r.SetMid(V(5, 5))
	if !r.NW().Equal(V(4.5, 4)) || !r.SE().Equal(V(5.5, 6)) {
		t.Errorf("SetMid mismatch: %+v", r)
	}
	if !r.Contains(V(5, 5)) {
		t.Error("should contain centre")
	}
	if r.Contains(V(4.5, 5)) {
		t.Error("edge should not be contained")
	}
	if !r.Overlaps(Rect{X: 5.5, Y: 6, W: 1, H: 1}) {
		t.Error("touching rects should overlap")
	}
	if r.Overlaps(Rect{X: 7, Y: 7, W: 1, H: 1}) {
		t.Error("disjoint rects should not overlap")
	}
}

func TestLineBounds(t *testing.T) {
	l := Line{P1: V(0.4, 0.5), P2: V(0.2, 0.5)}
	b := l.Bounds(DefaultLineMargin)
	if math.Abs(b.X-0.19) > eps || math.Abs(b.Y-0.49) > eps {
		t.Errorf("bounds origin mismatch: %+v", b)
	}
	if math.Abs(b.W-0.22) > eps || math.Abs(b.H-0.02) > eps {
		t.Errorf("bounds size mismatch: %+v", b)
	}
	if math.Abs(l.Len()-0.2) > eps {
		t.Error("len mismatch")
	}
}

func TestLCGDeterminism(t *testing.T) {
	a := NewLCG(12345)
	b := NewLCG(12345)
	for i := 0; i < 100; i++ {
		if a.Uint32() != b.Uint32() {
			t.Fatalf("sequences diverged at %d", i)
		}
	}
	c := NewLCG(54321)
	same := true
	for i := 0; i < 10; i++ {
		if a.Uint32() != c.Uint32() {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical sequences")
	}
}

func TestLCGIntRange(t *testing.T) {
	g := NewLCG(7)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v := g.IntRange(-1, 1)
		if v < -1 || v > 1 {
			t.Fatalf("IntRange out of bounds: %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all of -1,0,1 to appear, got %v", seen)
	}
	for i := 0; i < 1000; i++ {
		f := g.Float64()
		if f < 0 || f >= 1 {
			t.Fatalf("Float64 out of range: %f", f)
		}
	}
}
