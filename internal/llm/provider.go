package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingKey is returned by every call of a provider built without a
// credential. The server still starts so the key can be fixed without a
// redeploy of the frontend.
var ErrMissingKey = errors.New("provider credential is not configured")

// Embedder turns texts into vectors, one vector per input text in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer runs a single completion with a system instruction and a user turn.
type Completer interface {
	Complete(ctx context.Context, systemInstruction, prompt string) (string, error)
}

type Provider interface {
	Embedder
	Completer
	Name() string
	Close() error
}

type Options struct {
	Provider       string
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
}

func NewProvider(ctx context.Context, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "gemini":
		return NewGeminiProvider(ctx, opts.APIKey, opts.ChatModel, opts.EmbeddingModel)
	case "openai":
		return NewOpenAIProvider(opts.APIKey, opts.BaseURL, opts.ChatModel, opts.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}
}
