package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

const defaultGenAIModel = "gemini-2.0-flash"

// GenAIGenerator answers prompts with a Gemini model
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

func NewGenAIGenerator(ctx context.Context, cfg config.GenerationConfig) (*GenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: genai api key is not configured", domain.ErrGenerationUnavailable)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", domain.ErrGenerationUnavailable, err)
	}

	return &GenAIGenerator{client: client, model: model}, nil
}

func (g *GenAIGenerator) Name() string { return "genai" }

func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("%w: genai returned an empty answer", domain.ErrGenerationUnavailable)
	}
	return answer, nil
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Code
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			status = 429
		}
		return classify("genai", status, err)
	}
	return classify("genai", 0, err)
}
