package engine

import "fmt"

// ValidationError reports dimensionally inconsistent input to the scorer.
// It is returned before any scoring state is built.
type ValidationError struct {
	Index int // offending embedding index
	Got   int // its dimensionality
	Want  int // dimensionality established by the first embedding
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("embedding %d has %d dimensions, want %d", e.Index, e.Got, e.Want)
}

// validateDimensions checks that every embedding in the sequence shares the
// dimensionality of the first.
func validateDimensions(embeddings [][]float64) error {
	if len(embeddings) == 0 {
		return nil
	}
	want := len(embeddings[0])
	for i, vec := range embeddings {
		if len(vec) != want {
			return &ValidationError{Index: i, Got: len(vec), Want: want}
		}
	}
	return nil
}
