/*
Package embedding turns text into vectors through whichever provider the
active embedding profile names.
*/
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/theapemachine/memoria/pkg/config"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

/*
Error is the single failure type every provider returns, whether the cause
was a bad credential, a rate limit or the network. Nothing here retries.
*/
type Error struct {
	Provider string
	Model    string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("embedding %s/%s failed with status %d: %v", e.Provider, e.Model, e.Status, e.Err)
	}

	return fmt.Sprintf("embedding %s/%s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds the provider a profile describes.
func New(cfg config.Embedding) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIEmbedder(
			WithOpenAIEmbedderClient(NewOpenAIClient(cfg.APIKey, cfg.URL)),
			WithOpenAIEmbedderModel(cfg.Model),
			WithOpenAIEmbedderDimension(cfg.Dimension),
		), nil
	case "ollama":
		client, err := NewOllamaClient(cfg.URL)
		if err != nil {
			return nil, &Error{Provider: "ollama", Model: cfg.Model, Err: err}
		}

		return NewOllamaEmbedder(
			WithOllamaEmbedderClient(client),
			WithOllamaEmbedderModel(cfg.Model),
			WithOllamaEmbedderDimension(cfg.Dimension),
		), nil
	case "cohere":
		return NewCohereEmbedder(
			WithCohereEmbedderClient(NewCohereClient(cfg.APIKey, cfg.URL)),
			WithCohereEmbedderModel(cfg.Model),
			WithCohereEmbedderDimension(cfg.Dimension),
		), nil
	case "gemini", "google":
		client, err := NewGeminiClient(context.Background(), cfg.APIKey, cfg.URL)
		if err != nil {
			return nil, &Error{Provider: "gemini", Model: cfg.Model, Err: err}
		}

		return NewGeminiEmbedder(
			WithGeminiEmbedderClient(client),
			WithGeminiEmbedderModel(cfg.Model),
			WithGeminiEmbedderDimension(cfg.Dimension),
		), nil
	case "mock":
		return NewMock(cfg.Dimension), nil
	}

	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

func checkDimension(provider, model string, want int, vector []float32) error {
	if len(vector) == 0 {
		return &Error{Provider: provider, Model: model, Err: fmt.Errorf("empty embedding returned")}
	}

	if want > 0 && len(vector) != want {
		return &Error{Provider: provider, Model: model, Err: fmt.Errorf(
			"got %d dimensions, profile expects %d", len(vector), want,
		)}
	}

	return nil
}
