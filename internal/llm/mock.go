package llm

import (
	"context"
	"strings"
)

// MockClient is a test double for the Client interface. It can also back
// dry-run mode. Scripted chunks are streamed in order; an empty script
// reproduces the zero-chunk provider failure.
type MockClient struct {
	Chunks []string
	Err    error    // forced failure, returned before any chunks stream
	Calls  []string // records prompts sent
}

// Stream records the call, streams the scripted chunks, and returns the
// accumulated response.
func (m *MockClient) Stream(ctx context.Context, prompt string, fn func(chunk string)) (*Response, error) {
	m.Calls = append(m.Calls, prompt)

	if m.Err != nil {
		return nil, &ProviderError{Provider: "mock", Err: m.Err}
	}
	if len(m.Chunks) == 0 {
		return nil, &ProviderError{Provider: "mock", Err: ErrNoChunks}
	}

	var content strings.Builder
	for _, chunk := range m.Chunks {
		content.WriteString(chunk)
		fn(chunk)
	}

	return &Response{
		Content:  content.String(),
		Provider: "mock",
	}, nil
}
