package vectorstore

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity between two vectors
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// DotProduct computes the dot product of two vectors
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}

	var sum float64
	for i := range a {
		sum += float64(a[i] * b[i])
	}

	return sum, nil
}

// Magnitude computes the magnitude (length) of a vector
func Magnitude(vec []float32) (float64, error) {
	if len(vec) == 0 {
		return 0, fmt.Errorf("empty vector")
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}

	return math.Sqrt(sum), nil
}

// Normalize returns a unit-length copy of vec. A zero vector is returned
// unchanged so that the all-zero sentinel survives normalization.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)

	normalized := make([]float32, len(vec))
	if norm == 0 {
		copy(normalized, vec)
		return normalized
	}
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}

// IsZero reports whether every component of vec is zero.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
