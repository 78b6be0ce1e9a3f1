package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
}

func TestNormalizeL2_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeL2(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%d] = %f, want 0", i, x)
		}
	}
}

func TestDot(t *testing.T) {
	if d := Dot([]float32{1, 0}, []float32{1, 0}); math.Abs(d-1.0) > 1e-9 {
		t.Errorf("Dot = %f, want 1", d)
	}
	if d := Dot([]float32{1, 0}, []float32{0, 1}); d != 0 {
		t.Errorf("Dot = %f, want 0", d)
	}
}
