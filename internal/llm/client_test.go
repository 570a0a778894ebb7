package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lazypower/engram/internal/config"
)

func TestNewClientAnthropic(t *testing.T) {
	cfg := config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key", Model: "claude-haiku-4-5"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*Anthropic); !ok {
		t.Errorf("expected *Anthropic, got %T", client)
	}
}

func TestNewClientAnthropicMissingKey(t *testing.T) {
	cfg := config.LLMConfig{Provider: "anthropic"}
	_, err := NewClient(cfg)
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewClientOllama(t *testing.T) {
	cfg := config.LLMConfig{Provider: "ollama", OllamaModel: "llama3.2"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*Ollama); !ok {
		t.Errorf("expected *Ollama, got %T", client)
	}
}

func TestNewClientMock(t *testing.T) {
	client, err := NewClient(config.LLMConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*MockClient); !ok {
		t.Errorf("expected *MockClient, got %T", client)
	}
}

func TestNewClientUnknown(t *testing.T) {
	cfg := config.LLMConfig{Provider: "gpt"}
	_, err := NewClient(cfg)
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestMockClientStreams(t *testing.T) {
	mock := &MockClient{Chunks: []string{"hello ", "streamed ", "world"}}

	var got []string
	resp, err := mock.Stream(context.Background(), "test prompt", func(chunk string) {
		got = append(got, chunk)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(got) != 3 || got[0] != "hello " || got[2] != "world" {
		t.Errorf("chunks = %v, want the scripted three in order", got)
	}
	if resp.Content != "hello streamed world" {
		t.Errorf("content = %q, want accumulated chunks", resp.Content)
	}
	if len(mock.Calls) != 1 || mock.Calls[0] != "test prompt" {
		t.Errorf("calls = %v, want [test prompt]", mock.Calls)
	}
}

func TestMockClientNoChunks(t *testing.T) {
	mock := &MockClient{}

	_, err := mock.Stream(context.Background(), "p", func(string) {})
	if !errors.Is(err, ErrNoChunks) {
		t.Fatalf("err = %v, want ErrNoChunks", err)
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if perr.Provider != "mock" {
		t.Errorf("provider = %q, want mock", perr.Provider)
	}
}

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s, want /api/generate", r.URL.Path)
		}
		fmt.Fprintln(w, `{"response":"The ","done":false}`)
		fmt.Fprintln(w, `{"response":"answer.","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"prompt_eval_count":10,"eval_count":5}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	var chunks []string
	resp, err := o.Stream(context.Background(), "question", func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(chunks) != 2 {
		t.Errorf("chunks = %v, want 2", chunks)
	}
	if resp.Content != "The answer." {
		t.Errorf("content = %q, want %q", resp.Content, "The answer.")
	}
	if resp.TokensUsed != 15 {
		t.Errorf("tokens = %d, want 15", resp.TokensUsed)
	}
	if resp.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", resp.Provider)
	}
}

func TestOllamaStreamPartialIsNormalCompletion(t *testing.T) {
	// Stream dies after two chunks, no done marker.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"partial ","done":false}`)
		fmt.Fprintln(w, `{"response":"output","done":false}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	resp, err := o.Stream(context.Background(), "q", func(string) {})
	if err != nil {
		t.Fatalf("partial stream should complete normally, got %v", err)
	}
	if resp.Content != "partial output" {
		t.Errorf("content = %q, want the delivered partial output", resp.Content)
	}
}

func TestOllamaStreamNoChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	_, err := o.Stream(context.Background(), "q", func(string) {})
	if !errors.Is(err, ErrNoChunks) {
		t.Errorf("err = %v, want ErrNoChunks", err)
	}
}

func TestOllamaStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "missing-model")
	_, err := o.Stream(context.Background(), "q", func(string) {})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if perr.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", perr.Provider)
	}
}

func TestAnswerPrompt(t *testing.T) {
	p := AnswerPrompt("what is resonance?", []string{"resonance is periodic", "formula: cos(pi*i/10)"})

	if !strings.Contains(p, "what is resonance?") {
		t.Error("prompt missing the question")
	}
	if !strings.Contains(p, "[1] resonance is periodic") || !strings.Contains(p, "[2] formula: cos(pi*i/10)") {
		t.Error("prompt missing numbered context passages")
	}

	empty := AnswerPrompt("anything?", nil)
	if !strings.Contains(empty, "no stored context") {
		t.Error("empty-context prompt should say the context is empty")
	}
}
