// Package generation turns a composed prompt into an answer using a hosted model.
package generation

import (
	"context"
	"fmt"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// Generator produces an answer for a prompt. Implementations return
// domain.ErrGenerationQuotaExceeded when throttled and
// domain.ErrGenerationUnavailable for every other failure. No retries happen here.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// New creates the configured generator. A missing API key is a configuration
// error wrapping domain.ErrGenerationUnavailable.
func New(ctx context.Context, cfg config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "genai":
		g, err := NewGenAIGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai":
		g, err := NewOpenAIGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", domain.ErrGenerationUnavailable, cfg.Provider)
	}
}

// Unavailable is a Generator that always fails. It stands in when the
// configured backend could not be created so the rest of the service still runs.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Name() string { return "unavailable" }

func (u Unavailable) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, u.Reason)
}

func classify(provider string, status int, err error) error {
	if status == 429 {
		return fmt.Errorf("%w: %s: %v", domain.ErrGenerationQuotaExceeded, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrGenerationUnavailable, provider, err)
}
