package engine

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalize(t *testing.T) {
	vec := []float64{3, 4}
	normalize(vec)

	expected := 1.0
	norm := math.Sqrt(vec[0]*vec[0] + vec[1]*vec[1])
	if math.Abs(norm-expected) > 1e-10 {
		t.Errorf("normalized magnitude = %f, want %f", norm, expected)
	}
}

func TestNormalizeZero(t *testing.T) {
	vec := []float64{0, 0, 0}
	normalize(vec) // should not panic
	for i, v := range vec {
		if v != 0 {
			t.Errorf("vec[%d] = %f, want 0", i, v)
		}
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(64)

	if h.Model() != "hash" {
		t.Errorf("model = %q, want hash", h.Model())
	}

	a, err := h.Embed(ctx, "resonance cascades through the sequence")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("vec length = %d, want 64", len(a))
	}

	// Unit norm
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-10 {
		t.Errorf("norm = %f, want 1.0", math.Sqrt(sum))
	}

	// Same text, same vector
	b, _ := h.Embed(ctx, "resonance cascades through the sequence")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vec[%d] differs across calls: %f vs %f", i, a[i], b[i])
		}
	}

	// Different text, different vector
	c, _ := h.Embed(ctx, "a completely different sentence")
	if Cosine(a, c) > 0.99 {
		t.Errorf("distinct texts embedded nearly identically, cosine = %f", Cosine(a, c))
	}
}

func TestHashEmbedderBatch(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(32)
	texts := []string{"first", "second", "third"}

	batch, err := h.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("batch length = %d, want %d", len(batch), len(texts))
	}

	for i, text := range texts {
		single, _ := h.Embed(ctx, text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] does not match Embed(%q)", i, text)
			}
		}
	}
}

func ollamaEmbedStub(t *testing.T, requests *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		*requests++

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}

		embeddings := make([][]float64, len(req.Input))
		for i := range embeddings {
			embeddings[i] = []float64{float64(i), 1, 0}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedderBatch(t *testing.T) {
	var requests int
	srv := ollamaEmbedStub(t, &requests)

	o := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0)
	vecs, err := o.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
	if o.Dimensions() != 3 {
		t.Errorf("dimensions = %d, want 3 (learned from response)", o.Dimensions())
	}
}

func TestOllamaEmbedderChunksLargeBatches(t *testing.T) {
	var requests int
	srv := ollamaEmbedStub(t, &requests)

	texts := make([]string, ollamaBatchSize+8)
	for i := range texts {
		texts[i] = "unit"
	}

	o := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0)
	vecs, err := o.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

func TestOllamaEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1, 0}}})
	}))
	t.Cleanup(srv.Close)

	o := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0)
	if _, err := o.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when response count does not match input count")
	}
}

type countingEmbedder struct {
	*HashEmbedder
	embeds  int
	batched [][]string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.embeds++
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	c.batched = append(c.batched, append([]string(nil), texts...))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderHit(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}

	c, err := NewCachedEmbedder(inner, 128)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}

	first, err := c.Embed(ctx, "repeated query")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	c.Wait()

	second, err := c.Embed(ctx, "repeated query")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if inner.embeds != 1 {
		t.Errorf("inner embeds = %d, want 1 (second call served from cache)", inner.embeds)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
}

func TestCachedEmbedderBatchMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}

	c, err := NewCachedEmbedder(inner, 128)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}

	if _, err := c.Embed(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	vecs, err := c.EmbedBatch(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("batch length = %d, want 2", len(vecs))
	}

	// Only the miss goes to the wrapped embedder.
	if len(inner.batched) != 1 || len(inner.batched[0]) != 1 || inner.batched[0][0] != "beta" {
		t.Errorf("inner batches = %v, want just [beta]", inner.batched)
	}

	want, _ := inner.HashEmbedder.Embed(ctx, "alpha")
	for i := range want {
		if vecs[0][i] != want[i] {
			t.Fatalf("cached batch result differs at %d", i)
		}
	}
}
