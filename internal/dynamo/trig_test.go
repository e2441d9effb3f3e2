package dynamo

import (
	"math"
	"testing"
)

func TestWrapDifference_Range(t *testing.T) {
	tests := []struct {
		angle, alpha float64
	}{
		{0, 0},
		{math.Pi, 0},
		{-math.Pi, 0},
		{3 * math.Pi, 0},
		{-3 * math.Pi, 0},
		{0.1, 2*math.Pi - 0.1},
		{100.5, -37.25},
		{-1e6, 1e6},
		{math.Pi - 1e-12, -math.Pi},
	}

	for _, tt := range tests {
		got := WrapDifference(tt.angle, tt.alpha)
		if got <= -math.Pi || got > math.Pi {
			t.Errorf("WrapDifference(%v, %v) = %v, outside (-π, π]", tt.angle, tt.alpha, got)
		}
	}
}

func TestWrapDifference_Identity(t *testing.T) {
	for _, a := range []float64{0, 1, -1, math.Pi, -math.Pi, 1e9, -123.456} {
		if got := WrapDifference(a, a); got != 0 {
			t.Errorf("WrapDifference(%v, %v) = %v, want 0", a, a, got)
		}
	}
}

func TestWrapDifference_AcrossBoundary(t *testing.T) {
	got := WrapDifference(-math.Pi+0.05, math.Pi-0.05)
	if math.Abs(got-0.1) > 1e-12 {
		t.Errorf("expected small positive difference across the wrap, got %v", got)
	}
}

func TestWrapAngle_Pi(t *testing.T) {
	if got := WrapAngle(-math.Pi); got != math.Pi {
		t.Errorf("WrapAngle(-π) = %v, want π", got)
	}
	if got := WrapAngle(math.NaN()); got != 0 {
		t.Errorf("WrapAngle(NaN) = %v, want 0", got)
	}
}
