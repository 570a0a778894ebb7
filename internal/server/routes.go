package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/engram/internal/engine"
	"github.com/lazypower/engram/internal/formula"
	"github.com/lazypower/engram/internal/ingest"
	"github.com/lazypower/engram/internal/llm"
)

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string         `json:"name"`
		Text  string         `json:"text"`
		Hints map[string]int `json:"hints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		req.Name = "document"
	}

	hints := make(map[int]int, len(req.Hints))
	for k, weight := range req.Hints {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			errorJSON(w, http.StatusBadRequest, "hint index must be a non-negative integer: "+k)
			return
		}
		hints[idx] = weight
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := ingest.PlainText{}.Ingest(ctx, req.Name, strings.NewReader(req.Text))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.ProcessDocument(ctx, doc, hints)
	if err != nil {
		log.Error("process document failed", "name", req.Name, "err", err)
		errorJSON(w, processStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"document_id": res.BundleID,
		"name":        res.Name,
		"units":       res.Units,
		"formulas":    res.Formulas,
		"dimensions":  res.Dimensions,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// processStatus maps engine failures onto HTTP status codes: invalid input
// is the caller's fault, provider trouble is upstream's.
func processStatus(err error) int {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity
	}
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		errorJSON(w, http.StatusBadRequest, "q parameter required")
		return
	}

	topK := 0
	if k := r.URL.Query().Get("k"); k != "" {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			errorJSON(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		topK = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	results, err := s.engine.Search(ctx, query, topK)
	if err != nil {
		log.Error("search failed", "query", query, "err", err)
		errorJSON(w, processStatus(err), err.Error())
		return
	}
	if results == nil {
		results = []engine.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.QuerySettings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings engine.QuerySettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.SetQuerySettings(settings); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	log.Info("query settings updated",
		"results", settings.Results,
		"window", settings.Window,
		"threshold", settings.Threshold)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.QuerySettings())
}

func (s *Server) handleActivations(w http.ResponseWriter, r *http.Request) {
	points := s.engine.Activations()
	if points == nil {
		points = []engine.ActivationPoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":  len(points),
		"points": points,
	})
}

func (s *Server) handleFormulas(w http.ResponseWriter, r *http.Request) {
	entries := s.engine.Formulas()
	if entries == nil {
		entries = []formula.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":    len(entries),
		"formulas": entries,
	})
}
