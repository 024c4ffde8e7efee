package embedding

import (
	"context"
	"fmt"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/theapemachine/memoria/pkg/utils"
)

const defaultCohereModel = "embed-english-v3.0"

/*
CohereEmbedder embeds through the Cohere embed endpoint. Stored memories
and recall queries share one input type so both sides land in the same
space.
*/
type CohereEmbedder struct {
	api       *cohereclient.Client
	model     string
	dimension int
	inputType cohere.EmbedInputType
}

type CohereEmbedderOption func(*CohereEmbedder)

func NewCohereEmbedder(options ...CohereEmbedderOption) *CohereEmbedder {
	embedder := &CohereEmbedder{
		model:     defaultCohereModel,
		inputType: cohere.EmbedInputTypeSearchDocument,
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func NewCohereClient(apiKey, baseURL string) *cohereclient.Client {
	if baseURL != "" {
		return cohereclient.NewClient(cohereclient.WithToken(apiKey), cohereclient.WithBaseURL(baseURL))
	}

	return cohereclient.NewClient(cohereclient.WithToken(apiKey))
}

func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.model
	inputType := e.inputType

	resp, err := e.api.Embed(ctx, &cohere.EmbedRequest{
		Model:     &model,
		InputType: &inputType,
		Texts:     []string{text},
	})
	if err != nil {
		return nil, &Error{Provider: "cohere", Model: e.model, Err: err}
	}

	floats := resp.GetEmbeddingsFloats()

	if floats == nil || len(floats.Embeddings) == 0 {
		return nil, &Error{Provider: "cohere", Model: e.model, Err: fmt.Errorf("no embedding in response")}
	}

	vector := utils.ConvertToFloat32(floats.Embeddings[0])

	if err := checkDimension("cohere", e.model, e.dimension, vector); err != nil {
		return nil, err
	}

	return vector, nil
}

func (e *CohereEmbedder) Dimension() int {
	return e.dimension
}

func (e *CohereEmbedder) Model() string {
	return e.model
}

func WithCohereEmbedderClient(client *cohereclient.Client) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.api = client
	}
}

func WithCohereEmbedderModel(model string) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

func WithCohereEmbedderDimension(dimension int) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.dimension = dimension
	}
}
