package store

import "math"

// CosineSimilarity returns 1 - cosineDistance(a, b), in [-1, 1].
// Mismatched lengths and zero vectors yield NaN, which never passes a threshold.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return ClampSimilarity(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ClampSimilarity pins rounding overshoot back into [-1, 1]. NaN passes through.
func ClampSimilarity(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

// PassesThreshold applies the strict ">" rule: a similarity equal to the
// threshold is excluded, and so is NaN.
func PassesThreshold(similarity, threshold float64) bool {
	return similarity > threshold
}

// ValidVector reports whether every component is finite and the vector is non-empty.
func ValidVector(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}
