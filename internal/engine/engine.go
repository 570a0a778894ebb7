package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/engram/internal/formula"
	"github.com/lazypower/engram/internal/ingest"
	"github.com/lazypower/engram/internal/llm"
	"github.com/lazypower/engram/internal/store"
)

// Engine orchestrates document scoring, retrieval, and persistence around a
// single active bundle. Processing a document is exclusive and replaces the
// bundle wholesale; searches are read-only and run concurrently against the
// last committed bundle. Provider calls never happen under the bundle lock.
type Engine struct {
	DB       *store.DB
	LLM      llm.Client
	Embedder Embedder
	Scorer   *Scorer

	processMu sync.Mutex // serializes ProcessDocument end to end

	mu       sync.RWMutex // guards bundle, formulas, settings
	bundle   *store.Bundle
	formulas *formula.Store
	settings QuerySettings
}

// QuerySettings are the run-time retrieval parameters. Changes apply to the
// next search, never retroactively.
type QuerySettings struct {
	Results   int     `json:"results"`
	Window    int     `json:"window"`
	Threshold float64 `json:"threshold"`
}

// DefaultQuerySettings returns the standard retrieval settings.
func DefaultQuerySettings() QuerySettings {
	return QuerySettings{Results: 5, Window: 2, Threshold: 0.3}
}

// New creates a new Engine.
func New(db *store.DB, client llm.Client, scorer *Scorer) *Engine {
	return &Engine{
		DB:       db,
		LLM:      client,
		Scorer:   scorer,
		formulas: formula.New(),
		settings: DefaultQuerySettings(),
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// QuerySettings returns the current retrieval settings.
func (e *Engine) QuerySettings() QuerySettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// SetQuerySettings replaces the retrieval settings after validating them.
func (e *Engine) SetQuerySettings(s QuerySettings) error {
	if s.Results <= 0 {
		return fmt.Errorf("results must be positive, got %d", s.Results)
	}
	if s.Window < 0 {
		return fmt.Errorf("window must be non-negative, got %d", s.Window)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
	return nil
}

// ProcessResult summarizes one successful document processing run.
type ProcessResult struct {
	BundleID   string        `json:"document_id"`
	Name       string        `json:"name"`
	Units      int           `json:"units"`
	Formulas   int           `json:"formulas"`
	Dimensions int           `json:"dimensions"`
	Duration   time.Duration `json:"-"`
}

// ProcessDocument embeds, scores, and persists a document, then swaps it in
// as the active bundle. The operation commits only on full success: any
// failure along the way leaves the previous bundle active and the persisted
// state untouched. Hints bias per-unit saturation limits.
func (e *Engine) ProcessDocument(ctx context.Context, doc *ingest.Document, hints map[int]int) (*ProcessResult, error) {
	if e.Embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	e.processMu.Lock()
	defer e.processMu.Unlock()

	start := time.Now()

	// Provider round-trip happens before the bundle lock is taken, so
	// searches keep serving the previous bundle meanwhile.
	embeddings, err := e.Embedder.EmbedBatch(ctx, doc.Units)
	if err != nil {
		return nil, &llm.ProviderError{Provider: e.Embedder.Model(), Err: err}
	}

	result, err := e.Scorer.Score(embeddings, hints)
	if err != nil {
		return nil, err
	}

	fs := formula.New()
	for _, occ := range doc.Formulas {
		fs.Record(occ.Formula, doc.Source, occ.Offset)
	}

	bundle := store.NewBundle(doc.Name, e.Embedder.Model(), doc.Units, embeddings, result.Activations, fs.Render())

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.DB.SaveBundle(bundle); err != nil {
		return nil, fmt.Errorf("persist bundle: %w", err)
	}
	e.bundle = bundle
	e.formulas = fs

	elapsed := time.Since(start)
	log.Info("processed document",
		"name", doc.Name,
		"units", len(doc.Units),
		"formulas", fs.Len(),
		"dimensions", bundle.Dimensions,
		"duration", elapsed)

	return &ProcessResult{
		BundleID:   bundle.ID.String(),
		Name:       bundle.Name,
		Units:      len(bundle.Units),
		Formulas:   fs.Len(),
		Dimensions: bundle.Dimensions,
		Duration:   elapsed,
	}, nil
}

// Load restores the persisted bundle at startup. A missing bundle is not an
// error: the engine starts empty. A corrupt bundle is.
func (e *Engine) Load() error {
	b, err := e.DB.LoadBundle()
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("no persisted bundle, starting empty")
		return nil
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.bundle = b
	e.formulas = formula.FromEntries(b.Formulas)
	e.mu.Unlock()

	log.Info("restored bundle", "name", b.Name, "units", len(b.Units), "formulas", len(b.Formulas))
	return nil
}

// AskResult carries the full answer after streaming completes.
type AskResult struct {
	Answer     string         `json:"answer"`
	Provider   string         `json:"provider"`
	TokensUsed int            `json:"tokens_used"`
	Sources    []SearchResult `json:"sources"`
}

// Ask retrieves context for the question under the current query settings,
// prompts the generative provider, and forwards chunks to fn as they
// arrive. A provider failure never touches the active bundle.
func (e *Engine) Ask(ctx context.Context, question string, fn func(chunk string)) (*AskResult, error) {
	if e.LLM == nil {
		return nil, fmt.Errorf("no generative provider configured")
	}

	settings := e.QuerySettings()
	results, err := e.Search(ctx, question, settings.Results)
	if err != nil {
		return nil, err
	}
	contexts := e.AssembleContext(results, settings.Window, settings.Threshold)

	resp, err := e.LLM.Stream(ctx, llm.AnswerPrompt(question, contexts), fn)
	if err != nil {
		return nil, err
	}

	return &AskResult{
		Answer:     resp.Content,
		Provider:   resp.Provider,
		TokensUsed: resp.TokensUsed,
		Sources:    results,
	}, nil
}

// ActivationPoint pairs a unit with its activation score.
type ActivationPoint struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Activation float64 `json:"activation"`
}

// Activations returns the full activation series of the active bundle with
// the unit text alongside, in sequence order.
func (e *Engine) Activations() []ActivationPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.bundle == nil {
		return nil
	}

	points := make([]ActivationPoint, len(e.bundle.Units))
	for i := range e.bundle.Units {
		points[i] = ActivationPoint{
			Index:      i,
			Text:       e.bundle.Units[i],
			Activation: e.bundle.Activations[i],
		}
	}
	return points
}

// Formulas returns the active bundle's formula contexts in insertion order.
func (e *Engine) Formulas() []formula.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.formulas.Render()
}

// Stats summarizes the active bundle for status surfaces.
type Stats struct {
	BundleID   string            `json:"bundle_id"`
	Name       string            `json:"name"`
	Units      int               `json:"units"`
	Dimensions int               `json:"dimensions"`
	Formulas   int               `json:"formulas"`
	Model      string            `json:"model"`
	CreatedAt  int64             `json:"created_at"`
	TopUnits   []ActivationPoint `json:"top_units,omitempty"`
}

// Stats returns a summary of the active bundle, or nil when none is loaded.
func (e *Engine) Stats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.bundle == nil {
		return nil
	}

	s := &Stats{
		BundleID:   e.bundle.ID.String(),
		Name:       e.bundle.Name,
		Units:      len(e.bundle.Units),
		Dimensions: e.bundle.Dimensions,
		Formulas:   len(e.bundle.Formulas),
		Model:      e.bundle.Model,
		CreatedAt:  e.bundle.CreatedAt,
	}
	s.TopUnits = topActivations(e.bundle, 5)
	return s
}

// topActivations returns the k highest-activation units, sequence order on
// ties. Caller holds the bundle lock.
func topActivations(b *store.Bundle, k int) []ActivationPoint {
	points := make([]ActivationPoint, len(b.Units))
	for i := range b.Units {
		points[i] = ActivationPoint{Index: i, Text: b.Units[i], Activation: b.Activations[i]}
	}
	sortPointsByActivation(points)
	if len(points) > k {
		points = points[:k]
	}
	return points
}
