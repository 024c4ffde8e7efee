package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "text-embedding-004"

type GeminiEmbedder struct {
	api       *genai.Client
	model     string
	dimension int
}

type GeminiEmbedderOption func(*GeminiEmbedder)

func NewGeminiEmbedder(options ...GeminiEmbedderOption) *GeminiEmbedder {
	embedder := &GeminiEmbedder{model: defaultGeminiModel}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

/*
NewGeminiClient builds a Gemini API client. An empty baseURL keeps the
library default.
*/
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	return genai.NewClient(ctx, cfg)
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig

	if e.dimension > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(e.dimension))}
	}

	resp, err := e.api.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, &Error{Provider: "gemini", Model: e.model, Err: err}
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, &Error{Provider: "gemini", Model: e.model, Err: fmt.Errorf("no embedding in response")}
	}

	vector := resp.Embeddings[0].Values

	if err := checkDimension("gemini", e.model, e.dimension, vector); err != nil {
		return nil, err
	}

	return vector, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedder) Model() string {
	return e.model
}

func WithGeminiEmbedderClient(client *genai.Client) GeminiEmbedderOption {
	return func(e *GeminiEmbedder) {
		e.api = client
	}
}

func WithGeminiEmbedderModel(model string) GeminiEmbedderOption {
	return func(e *GeminiEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

func WithGeminiEmbedderDimension(dimension int) GeminiEmbedderOption {
	return func(e *GeminiEmbedder) {
		e.dimension = dimension
	}
}
