package engine

import "math"

// Cosine computes the cosine similarity between two vectors in [-1, 1].
// A length mismatch or a zero vector yields 0 rather than dividing by zero.
// Works on unnormalized vectors too.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// SimilarityMatrix computes the full pairwise cosine matrix for the given
// vectors. The result is square and symmetric with 1.0 on the diagonal;
// off-diagonal entries involving a zero vector are 0. Recomputed on demand,
// never stored.
func SimilarityMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := Cosine(vectors[i], vectors[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}
