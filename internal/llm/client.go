package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/lazypower/engram/internal/config"
)

// Client is the interface for generative providers. Stream delivers the
// response incrementally: fn is invoked once per chunk, in order, before
// Stream returns. A stream that terminates early after at least one chunk
// is a normal completion carrying the partial content; a stream that closes
// with zero chunks is a provider failure.
type Client interface {
	Stream(ctx context.Context, prompt string, fn func(chunk string)) (*Response, error)
}

// Response holds the accumulated result of a generation.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// ErrNoChunks means the provider stream closed without delivering any output.
var ErrNoChunks = errors.New("stream delivered no chunks")

// ProviderError wraps a generation failure with the provider name so callers
// at the orchestration boundary can report it without losing the cause.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewClient creates a generative client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model), nil
	case "mock":
		// Dry-run client: echoes a canned answer without network access.
		return &MockClient{Chunks: []string{"engram is running without a generative provider; configure llm.provider for real answers."}}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
