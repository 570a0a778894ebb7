package engine

import (
	"math"
	"math/rand"
	"time"
)

// Params holds the recurrence parameters for activation scoring. All seven
// are fixed at Scorer construction; changing one means re-scoring from
// scratch, there is no incremental update.
type Params struct {
	BaseDecay         float64
	ResonanceFactor   float64
	FeedbackWeight    float64
	ConceptBoost      float64
	MultiTurnWeight   float64
	SemanticThreshold float64
	SaturationLimit   float64
}

// DefaultParams returns the standard scoring parameters.
func DefaultParams() Params {
	return Params{
		BaseDecay:         0.05,
		ResonanceFactor:   1.2,
		FeedbackWeight:    0.7,
		ConceptBoost:      1.1,
		MultiTurnWeight:   0.6,
		SemanticThreshold: 0.0,
		SaturationLimit:   5000,
	}
}

// jitterSpan bounds the per-index decay jitter: uniform in [-0.02, 0.02].
const jitterSpan = 0.02

// conceptMean is the embedding-mean threshold above which a unit counts as
// concept-dense and its activation is boosted.
const conceptMean = 0.6

// reinforceWindow is the trailing window length for multi-turn and semantic
// reinforcement.
const reinforceWindow = 20

// Scorer computes activation series over embedded unit sequences.
type Scorer struct {
	params Params
	rng    *rand.Rand
}

// NewScorer creates a Scorer with the given parameters. rng drives the decay
// jitter; pass a fixed-seed source in tests for reproducible harmonics, or
// nil for a time-seeded one.
func NewScorer(params Params, rng *rand.Rand) *Scorer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scorer{params: params, rng: rng}
}

// Params returns the scorer's construction-time parameters.
func (s *Scorer) Params() Params { return s.params }

// Result is the outcome of scoring one embedded sequence. Harmonics carries
// the per-index harmonic weight exp(-decay[i]*i); it is a diagnostic artifact
// and is never folded into the activations.
type Result struct {
	Activations []float64
	Harmonics   []float64
}

// Score runs the activation recurrence over the embedding sequence.
// activation[0] is always 0. hints maps unit index to an importance weight w
// that rescales that index's saturation limit by 1+(w-3)*0.5. An empty
// sequence scores to an empty series without error; mixed dimensionality is
// rejected before any scoring state is built.
func (s *Scorer) Score(embeddings [][]float64, hints map[int]int) (Result, error) {
	n := len(embeddings)
	if n == 0 {
		return Result{}, nil
	}
	if err := validateDimensions(embeddings); err != nil {
		return Result{}, err
	}

	// Per-index decay with jitter, plus the derived harmonic weights.
	decay := make([]float64, n)
	harmonics := make([]float64, n)
	for i := range decay {
		jitter := (s.rng.Float64()*2 - 1) * jitterSpan
		decay[i] = s.params.BaseDecay * (1 + jitter)
		harmonics[i] = math.Exp(-decay[i] * float64(i))
	}

	// Saturation limits, fixed before the recurrence starts.
	limits := make([]float64, n)
	for i := range limits {
		limits[i] = s.params.SaturationLimit
		if w, ok := hints[i]; ok {
			limits[i] = s.params.SaturationLimit * (1 + (float64(w)-3)*0.5)
		}
	}

	means := make([]float64, n)
	for i, vec := range embeddings {
		means[i] = meanOf(vec)
	}

	sim := SimilarityMatrix(embeddings)

	act := make([]float64, n)
	for i := 1; i < n; i++ {
		a := act[i-1] +
			s.params.FeedbackWeight*math.Tanh(means[i-1]) +
			s.params.ResonanceFactor*math.Cos(math.Pi*float64(i)/10)

		if means[i] > conceptMean {
			a *= s.params.ConceptBoost
		}

		lo := i - reinforceWindow
		if lo < 0 {
			lo = 0
		}

		if i%reinforceWindow == 0 {
			var sum float64
			for _, v := range act[lo:i] {
				sum += v
			}
			a += s.params.MultiTurnWeight * sum / float64(i-lo)
		}

		for j := lo; j < i; j++ {
			if sim[i][j] > s.params.SemanticThreshold {
				a += s.params.MultiTurnWeight * act[j]
			}
		}

		// Upper clamp only; activations may go negative.
		if a > limits[i] {
			a = limits[i]
		}
		act[i] = a
	}

	return Result{Activations: act, Harmonics: harmonics}, nil
}

func meanOf(vec []float64) float64 {
	if len(vec) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vec {
		sum += v
	}
	return sum / float64(len(vec))
}
