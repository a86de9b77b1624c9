package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/pkg/anthropic"
	"github.com/sells-group/prospect-dash/pkg/ollama"
)

// OllamaBackend completes prompts against a local Ollama server.
type OllamaBackend struct {
	client ollama.Client
	model  string
}

// NewOllamaBackend wraps an Ollama client. An empty model uses the client's
// default.
func NewOllamaBackend(client ollama.Client, model string) *OllamaBackend {
	return &OllamaBackend{client: client, model: model}
}

func (b *OllamaBackend) Name() string { return "ollama" }

func (b *OllamaBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := b.client.Generate(ctx, ollama.GenerateRequest{
		Model:  b.model,
		System: system,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// AnthropicBackend completes prompts against the Anthropic API.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend wraps an Anthropic client.
func NewAnthropicBackend(client anthropic.Client, model string) *AnthropicBackend {
	return &AnthropicBackend{client: client, model: model}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	// The system prompt is identical across steps, so let it hit the
	// prompt cache.
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     b.model,
		MaxTokens: 1024,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(b.model, "enrich")
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", eris.New("anthropic: response had no text content")
}
