package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/sitebot/internal/domain"
)

const maxRetryDelay = 5 * time.Second

// Options configures a Resilient embedder
type Options struct {
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *zap.Logger
}

// Resilient splits input into batches and retries transient backend failures
// with exponential backoff. It guarantees one non-empty vector per input.
type Resilient struct {
	inner  Embedder
	opts   Options
	logger *zap.Logger
}

func NewResilient(inner Embedder, opts Options) *Resilient {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resilient{inner: inner, opts: opts, logger: logger.Named("embedding")}
}

func (r *Resilient) Name() string { return r.inner.Name() }

// Embed returns one vector per text. Backend outages surface as
// domain.ErrEmbeddingUnavailable and short responses as ErrIncomplete.
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(texts))
		vectors, err := r.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (r *Resilient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, retryDelay(r.opts.BaseDelay, attempt-1)); err != nil {
				return nil, err
			}
		}

		vectors, err := r.inner.Embed(ctx, batch)
		if err == nil {
			if err := checkVectors(batch, vectors); err != nil {
				return nil, err
			}
			return vectors, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		if isPermanent(err) {
			break
		}
		r.logger.Warn("embedding attempt failed",
			zap.String("provider", r.inner.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("%w: %s: %v", domain.ErrEmbeddingUnavailable, r.inner.Name(), lastErr)
}

func checkVectors(batch []string, vectors [][]float32) error {
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrIncomplete, len(vectors), len(batch))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", ErrIncomplete, i)
		}
	}
	return nil
}

// retryDelay doubles base per attempt, capped at five seconds
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		return maxRetryDelay
	}
	d := base << attempt
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
