package llm

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic streams completions from the Anthropic Messages API via the
// official SDK.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates a new Anthropic streaming client.
func NewAnthropic(apiKey, model string) *Anthropic {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Anthropic{
		client: &client,
		model:  model,
	}
}

// Stream sends the prompt and forwards text deltas to fn as they arrive.
// A stream that dies after delivering at least one chunk completes normally
// with the partial content.
func (a *Anthropic) Stream(ctx context.Context, prompt string, fn func(chunk string)) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	var content strings.Builder
	chunks := 0

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, &ProviderError{Provider: "anthropic", Err: err}
		}

		switch event := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if text := event.Delta.Text; text != "" {
				chunks++
				content.WriteString(text)
				fn(text)
			}
		}
	}

	if err := stream.Err(); err != nil && chunks == 0 {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}
	if chunks == 0 {
		return nil, &ProviderError{Provider: "anthropic", Err: ErrNoChunks}
	}

	return &Response{
		Content:    content.String(),
		Provider:   "anthropic",
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}
