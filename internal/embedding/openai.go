package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
// Ollama works through its /v1 base URL without an API key.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai api key or base_url is required", domain.ErrEmbeddingUnavailable)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(oc),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Name() string { return "openai" }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	// Data is matched by index, not position
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	return err
}
