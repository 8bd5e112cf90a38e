package coords

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMulIdentity(t *testing.T) {
	m := Matrix{2, 0, 0, 3, 5, 7}
	if got := m.Mul(Identity()); got != m {
		t.Fatalf("m * I = %v, want %v", got, m)
	}
	if got := Identity().Mul(m); got != m {
		t.Fatalf("I * m = %v, want %v", got, m)
	}
}

func TestApplyTranslateScale(t *testing.T) {
	m := Scale(2, 2).Mul(Translate(10, 20))
	p := m.Apply(Point{X: 3, Y: 4})
	if !almost(p.X, 16) || !almost(p.Y, 28) {
		t.Fatalf("transformed point = %+v, want (16, 28)", p)
	}
}

func TestInverseRoundTrip(t *testing.T) {
	m := Matrix{2, 0, 0, -2, 4, 100}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	p := Point{X: 12.5, Y: -3}
	back := inv.Apply(m.Apply(p))
	if !almost(back.X, p.X) || !almost(back.Y, p.Y) {
		t.Fatalf("round trip = %+v, want %+v", back, p)
	}
}

func TestInverseSingular(t *testing.T) {
	if _, err := (Matrix{0, 0, 0, 0, 1, 2}).Inverse(); err == nil {
		t.Fatal("expected error for singular matrix")
	}
}

func TestViewportFlipsY(t *testing.T) {
	vp := NewViewport(612, 792, 1.5)
	if !almost(vp.Width, 918) || !almost(vp.Height, 1188) {
		t.Fatalf("viewport size = %v x %v", vp.Width, vp.Height)
	}
	// The page-space origin (bottom-left) maps to the screen bottom-left.
	p := vp.Transform.Apply(Point{X: 0, Y: 0})
	if !almost(p.X, 0) || !almost(p.Y, 1188) {
		t.Fatalf("origin maps to %+v", p)
	}
	// The page top maps to screen y = 0.
	p = vp.Transform.Apply(Point{X: 0, Y: 792})
	if !almost(p.Y, 0) {
		t.Fatalf("page top maps to y = %v", p.Y)
	}
}

func TestToPDFY(t *testing.T) {
	// A 12pt-high box whose top sits 100pt below the page top on a
	// 792pt page has its bottom at 680 in PDF space.
	if got := ToPDFY(792, 100, 12); !almost(got, 680) {
		t.Fatalf("ToPDFY = %v, want 680", got)
	}
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 100, H: 30}
	if !r.Contains(10, 10) || !r.Contains(110, 40) || !r.Contains(50, 25) {
		t.Fatal("expected points inside")
	}
	if r.Contains(9.9, 10) || r.Contains(50, 40.1) {
		t.Fatal("expected points outside")
	}
}
