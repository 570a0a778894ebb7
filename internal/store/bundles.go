package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/engram/internal/formula"
)

var (
	// ErrNotFound means no bundle has been persisted yet.
	ErrNotFound = errors.New("bundle not found")
	// ErrCorrupt means the persisted bundle failed structural validation.
	// A corrupt bundle is never partially loaded.
	ErrCorrupt = errors.New("bundle corrupt")
)

// Bundle is the persisted snapshot of one scored document: text units with
// their embeddings and activations in index alignment, plus the captured
// formula contexts. At most one bundle exists; processing a new document
// replaces it wholesale rather than merging.
type Bundle struct {
	ID          uuid.UUID
	Name        string
	Model       string // embedding model that produced the vectors
	Dimensions  int
	CreatedAt   int64 // unix millis
	Units       []string
	Embeddings  [][]float64
	Activations []float64
	Formulas    []formula.Entry
}

// NewBundle assembles a bundle with a fresh identity over aligned series.
// Dimensions are taken from the first embedding.
func NewBundle(name, model string, units []string, embeddings [][]float64, activations []float64, formulas []formula.Entry) *Bundle {
	dims := 0
	if len(embeddings) > 0 {
		dims = len(embeddings[0])
	}
	return &Bundle{
		ID:          uuid.New(),
		Name:        name,
		Model:       model,
		Dimensions:  dims,
		CreatedAt:   time.Now().UnixMilli(),
		Units:       units,
		Embeddings:  embeddings,
		Activations: activations,
		Formulas:    formulas,
	}
}

// Validate checks the bundle's structural invariants: unit, embedding, and
// activation series share one length, and every embedding has the declared
// dimensionality.
func (b *Bundle) Validate() error {
	if len(b.Units) != len(b.Embeddings) || len(b.Units) != len(b.Activations) {
		return fmt.Errorf("%w: %d units, %d embeddings, %d activations",
			ErrCorrupt, len(b.Units), len(b.Embeddings), len(b.Activations))
	}
	for i, vec := range b.Embeddings {
		if len(vec) != b.Dimensions {
			return fmt.Errorf("%w: embedding %d has %d dimensions, want %d",
				ErrCorrupt, i, len(vec), b.Dimensions)
		}
	}
	return nil
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveBundle replaces the persisted bundle inside a single transaction. If
// any step fails, the previously stored bundle survives untouched.
func (db *DB) SaveBundle(b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}

	// Full replace; unit and formula rows cascade.
	if _, err := tx.Exec("DELETE FROM bundles"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear bundles: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO bundles (id, name, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID.String(), b.Name, b.Model, b.Dimensions, b.CreatedAt); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert bundle: %w", err)
	}

	for i := range b.Units {
		if _, err := tx.Exec(`
			INSERT INTO bundle_units (bundle_id, seq, text, embedding, activation)
			VALUES (?, ?, ?, ?, ?)
		`, b.ID.String(), i, b.Units[i], encodeEmbedding(b.Embeddings[i]), b.Activations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert unit %d: %w", i, err)
		}
	}

	for i, f := range b.Formulas {
		if _, err := tx.Exec(`
			INSERT INTO bundle_formulas (bundle_id, seq, formula, context)
			VALUES (?, ?, ?, ?)
		`, b.ID.String(), i, f.Formula, f.Context); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert formula %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// LoadBundle reads the persisted bundle, validating it structurally before
// returning. Returns ErrNotFound when nothing is stored and an error
// wrapping ErrCorrupt when validation fails.
func (db *DB) LoadBundle() (*Bundle, error) {
	var b Bundle
	var idStr string

	err := db.QueryRow(`
		SELECT id, name, model, dimensions, created_at FROM bundles LIMIT 1
	`).Scan(&idStr, &b.Name, &b.Model, &b.Dimensions, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad bundle id %q", ErrCorrupt, idStr)
	}
	b.ID = id

	rows, err := db.Query(`
		SELECT seq, text, embedding, activation
		FROM bundle_units WHERE bundle_id = ? ORDER BY seq
	`, idStr)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	defer rows.Close()

	next := 0
	for rows.Next() {
		var seq int
		var text string
		var blob []byte
		var act float64
		if err := rows.Scan(&seq, &text, &blob, &act); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		if seq != next {
			return nil, fmt.Errorf("%w: unit sequence gap, got seq %d at position %d", ErrCorrupt, seq, next)
		}
		if len(blob)%8 != 0 {
			return nil, fmt.Errorf("%w: unit %d embedding blob is %d bytes", ErrCorrupt, seq, len(blob))
		}
		b.Units = append(b.Units, text)
		b.Embeddings = append(b.Embeddings, decodeEmbedding(blob))
		b.Activations = append(b.Activations, act)
		next++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}

	frows, err := db.Query(`
		SELECT formula, context
		FROM bundle_formulas WHERE bundle_id = ? ORDER BY seq
	`, idStr)
	if err != nil {
		return nil, fmt.Errorf("load formulas: %w", err)
	}
	defer frows.Close()

	for frows.Next() {
		var e formula.Entry
		if err := frows.Scan(&e.Formula, &e.Context); err != nil {
			return nil, fmt.Errorf("scan formula: %w", err)
		}
		b.Formulas = append(b.Formulas, e)
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("iterate formulas: %w", err)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
