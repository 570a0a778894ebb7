package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/engram/internal/llm"
)

// handleAsk answers a question over the active bundle, streaming the
// response as server-sent events: one `data: {"chunk": ...}` frame per
// chunk, then a terminal frame carrying the full answer and its sources.
// A provider that fails before delivering any chunk gets a plain error
// response instead of a stream.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Question == "" {
		errorJSON(w, http.StatusBadRequest, "question required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		errorJSON(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	// SSE headers are deferred until the first chunk so a zero-chunk
	// provider failure can still produce a real error status.
	streaming := false
	begin := func() {
		if streaming {
			return
		}
		streaming = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}

	res, err := s.engine.Ask(ctx, req.Question, func(chunk string) {
		begin()
		writeEvent(w, map[string]any{"chunk": chunk})
		flusher.Flush()
	})
	if err != nil {
		log.Error("ask failed", "question", req.Question, "err", err)
		if !streaming {
			status := http.StatusInternalServerError
			var perr *llm.ProviderError
			if errors.As(err, &perr) {
				status = http.StatusBadGateway
			}
			errorJSON(w, status, err.Error())
			return
		}
		writeEvent(w, map[string]any{"error": err.Error()})
		flusher.Flush()
		return
	}

	begin()
	writeEvent(w, map[string]any{
		"done":        true,
		"answer":      res.Answer,
		"provider":    res.Provider,
		"tokens_used": res.TokensUsed,
		"sources":     res.Sources,
	})
	flusher.Flush()
}

func writeEvent(w io.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
