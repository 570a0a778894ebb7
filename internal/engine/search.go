package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lazypower/engram/internal/llm"
)

// SearchResult is a ranked hit against the active bundle.
type SearchResult struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Activation float64 `json:"activation"`
}

// Search embeds the query and ranks the active bundle's units by cosine
// similarity, descending, ties broken by sequence order. It returns at most
// topK results, fewer when the bundle holds fewer units, and an empty result
// set when no bundle is loaded. topK <= 0 falls back to the configured
// result count.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if e.Embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if topK <= 0 {
		topK = e.QuerySettings().Results
	}

	// Embed before taking the lock so a slow provider never stalls
	// concurrent readers.
	queryVec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, &llm.ProviderError{Provider: e.Embedder.Model(), Err: err}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.bundle == nil || len(e.bundle.Units) == 0 {
		return nil, nil
	}

	results := make([]SearchResult, len(e.bundle.Units))
	for i := range e.bundle.Units {
		results[i] = SearchResult{
			Index:      i,
			Text:       e.bundle.Units[i],
			Similarity: Cosine(queryVec, e.bundle.Embeddings[i]),
			Activation: e.bundle.Activations[i],
		}
	}

	// Stable sort keeps sequence order on similarity ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// AssembleContext turns ranked hits into prompt passages. Hits below the
// similarity threshold are dropped, survivors expand to their +-window
// neighborhood, and a unit already claimed by a stronger hit is not
// repeated. Rendered formula contexts are appended after the passages.
func (e *Engine) AssembleContext(results []SearchResult, window int, threshold float64) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.bundle == nil {
		return nil
	}

	n := len(e.bundle.Units)
	used := make(map[int]bool)
	var passages []string

	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		lo := r.Index - window
		if lo < 0 {
			lo = 0
		}
		hi := r.Index + window
		if hi > n-1 {
			hi = n - 1
		}

		var parts []string
		for i := lo; i <= hi; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			parts = append(parts, e.bundle.Units[i])
		}
		if len(parts) > 0 {
			passages = append(passages, strings.Join(parts, " "))
		}
	}

	for _, entry := range e.formulas.Render() {
		passages = append(passages, fmt.Sprintf("Formula %s appears as: %s", entry.Formula, entry.Context))
	}
	return passages
}

func sortPointsByActivation(points []ActivationPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Activation > points[j].Activation
	})
}
