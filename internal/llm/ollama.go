package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama streams completions from a local Ollama instance.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new Ollama client.
func NewOllama(url, model string) *Ollama {
	return &Ollama{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

// Stream sends a prompt to Ollama's generate endpoint with streaming on and
// decodes the NDJSON response line by line, forwarding each chunk to fn.
func (o *Ollama) Stream(ctx context.Context, prompt string, fn func(chunk string)) (*Response, error) {
	reqBody := map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": true,
		"options": map[string]any{
			"temperature": 0.3,
			"num_predict": 2048,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{
			Provider: "ollama",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, respBody),
		}
	}

	decoder := json.NewDecoder(resp.Body)
	var content strings.Builder
	chunks := 0
	tokens := 0

	for {
		var line struct {
			Response        string `json:"response"`
			Done            bool   `json:"done"`
			PromptEvalCount int    `json:"prompt_eval_count"`
			EvalCount       int    `json:"eval_count"`
		}
		if err := decoder.Decode(&line); err != nil {
			if err == io.EOF || chunks > 0 {
				// Early termination with delivered chunks is a normal
				// partial completion.
				break
			}
			return nil, &ProviderError{Provider: "ollama", Err: fmt.Errorf("decode stream: %w", err)}
		}

		if line.Response != "" {
			chunks++
			content.WriteString(line.Response)
			fn(line.Response)
		}
		if line.Done {
			tokens = line.PromptEvalCount + line.EvalCount
			break
		}
	}

	if chunks == 0 {
		return nil, &ProviderError{Provider: "ollama", Err: ErrNoChunks}
	}

	return &Response{
		Content:    content.String(),
		Provider:   "ollama",
		TokensUsed: tokens,
	}, nil
}
