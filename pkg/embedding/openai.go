package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theapemachine/memoria/pkg/utils"
)

type OpenAIEmbedder struct {
	api       openai.Client
	model     string
	dimension int
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{model: string(openai.EmbeddingModelTextEmbedding3Small)}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

/*
NewOpenAIClient builds a client with retries disabled; a failed call is
reported to the caller straight away. baseURL may point at any OpenAI
compatible server.
*/
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.api.Embeddings.New(ctx, params)
	if err != nil {
		failure := &Error{Provider: "openai", Model: e.model, Err: err}

		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			failure.Status = apiErr.StatusCode
		}

		return nil, failure
	}

	if len(resp.Data) == 0 {
		return nil, &Error{Provider: "openai", Model: e.model, Err: fmt.Errorf("no embedding in response")}
	}

	vector := utils.ConvertToFloat32(resp.Data[0].Embedding)

	if err := checkDimension("openai", e.model, e.dimension, vector); err != nil {
		return nil, err
	}

	return vector, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func WithOpenAIEmbedderModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

func WithOpenAIEmbedderDimension(dimension int) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.dimension = dimension
	}
}

func WithOpenAIEmbedderClient(client *openai.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.api = *client
	}
}
