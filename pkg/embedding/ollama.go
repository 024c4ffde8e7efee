package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

type OllamaEmbedder struct {
	client    *api.Client
	model     string
	dimension int
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func NewOllamaEmbedder(options ...OllamaEmbedderOption) *OllamaEmbedder {
	embedder := &OllamaEmbedder{model: "nomic-embed-text"}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

/*
NewOllamaClient connects to rawURL, or to whatever OLLAMA_HOST names when
rawURL is empty.
*/
func NewOllamaClient(rawURL string) (*api.Client, error) {
	if rawURL == "" {
		return api.ClientFromEnvironment()
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	return api.NewClient(base, http.DefaultClient), nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})

	if err != nil {
		failure := &Error{Provider: "ollama", Model: e.model, Err: err}

		var status api.StatusError
		if errors.As(err, &status) {
			failure.Status = status.StatusCode
		}

		return nil, failure
	}

	if len(resp.Embeddings) == 0 {
		return nil, checkDimension("ollama", e.model, e.dimension, nil)
	}

	if err := checkDimension("ollama", e.model, e.dimension, resp.Embeddings[0]); err != nil {
		return nil, err
	}

	return resp.Embeddings[0], nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) Model() string {
	return e.model
}

func WithOllamaEmbedderModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

func WithOllamaEmbedderDimension(dimension int) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.dimension = dimension
	}
}

func WithOllamaEmbedderClient(client *api.Client) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.client = client
	}
}
