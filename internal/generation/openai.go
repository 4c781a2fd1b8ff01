package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// OpenAIGenerator answers prompts through an OpenAI-compatible chat endpoint
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(cfg config.GenerationConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai api key or base_url is not configured", domain.ErrGenerationUnavailable)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIGenerator{client: openai.NewClientWithConfig(oc), model: model}, nil
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrGenerationUnavailable)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: openai returned an empty answer", domain.ErrGenerationUnavailable)
	}
	return answer, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classify("openai", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify("openai", reqErr.HTTPStatusCode, err)
	}
	return classify("openai", 0, err)
}
