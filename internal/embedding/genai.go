package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// GenAIEmbedder generates embeddings using Google's Gemini API.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGenAIEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (*GenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: genai api key is required", domain.ErrEmbeddingUnavailable)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", domain.ErrEmbeddingUnavailable, err)
	}

	return &GenAIEmbedder{client: client, model: model, dimensions: cfg.Dimensions}, nil
}

func (e *GenAIEmbedder) Name() string { return "genai" }

func (e *GenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	// Questions and chunks share one embedding space
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.dimensions > 0 {
		d := int32(e.dimensions)
		cfg.OutputDimensionality = &d
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(apiErr.Code, err)
		}
		return nil, err
	}

	vectors := make([][]float32, 0, len(result.Embeddings))
	for _, emb := range result.Embeddings {
		if emb == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}
