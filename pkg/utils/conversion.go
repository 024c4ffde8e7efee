package utils

import "math"

// ConvertToFloat32 narrows an embedding returned as float64.
func ConvertToFloat32(f []float64) []float32 {
	out := make([]float32, len(f))

	for i, v := range f {
		out[i] = float32(v)
	}

	return out
}

/*
Cosine returns the cosine similarity of two vectors, or 0 when their
lengths differ or either is all zeros.
*/
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place and reports whether it could.
func Normalize(v []float32) bool {
	var norm float64

	for _, x := range v {
		norm += float64(x) * float64(x)
	}

	if norm == 0 {
		return false
	}

	scale := float32(1 / math.Sqrt(norm))

	for i := range v {
		v[i] *= scale
	}

	return true
}
