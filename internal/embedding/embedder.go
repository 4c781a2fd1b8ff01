// Package embedding maps chunk texts to vectors through a configurable backend.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// ErrIncomplete indicates a backend returned fewer usable vectors than inputs.
var ErrIncomplete = errors.New("incomplete embedding")

// Embedder converts texts to vectors, one per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// New creates the configured backend wrapped with batching and retries
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (*Resilient, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.Provider {
	case "", "hash":
		inner = NewHashEmbedder(cfg.Dimensions)
	case "genai":
		inner, err = NewGenAIEmbedder(ctx, cfg)
	case "openai":
		inner, err = NewOpenAIEmbedder(cfg)
	default:
		err = fmt.Errorf("%w: unsupported provider %q", domain.ErrEmbeddingUnavailable, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewResilient(inner, Options{
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		Logger:     logger,
	}), nil
}

// permanentError marks failures that retrying cannot fix, such as bad credentials.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// classifyStatus marks client errors other than throttling as permanent
func classifyStatus(code int, err error) error {
	if code >= 400 && code < 500 && code != 429 {
		return permanent(err)
	}
	return err
}
