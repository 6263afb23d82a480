package domain

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector is nil or empty, when the lengths differ, or
// when either magnitude is zero. It never returns an error: malformed input
// means "no similarity", which the search threshold filters out naturally.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
