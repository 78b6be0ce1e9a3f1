package utils

import "math"

// normEpsilon guards against division by zero on a theoretical zero vector.
const normEpsilon = 1e-10

// NormalizeL2 scales the slice in place to unit L2 norm.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	inv := float32(1.0 / (math.Sqrt(sum) + normEpsilon))
	for i := range x {
		x[i] *= inv
	}
}

// Dot returns the inner product of a and b. For unit-normalized vectors this
// equals their cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
