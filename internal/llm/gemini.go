package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
}

var _ Provider = (*GeminiProvider)(nil)

func NewGeminiProvider(ctx context.Context, apiKey, chatModel, embeddingModel string) (*GeminiProvider, error) {
	p := &GeminiProvider{chatModel: chatModel, embeddingModel: embeddingModel}
	if apiKey == "" {
		return p, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Embed sends all texts in one batch request.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.client == nil {
		return nil, ErrMissingKey
	}
	em := p.client.EmbeddingModel(p.embeddingModel)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	vectors := make([][]float32, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		if e == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, e.Values)
	}
	return vectors, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if p.client == nil {
		return "", ErrMissingKey
	}
	model := p.client.GenerativeModel(p.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	temp := float32(0)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text parts")
	}
	return out.String(), nil
}
