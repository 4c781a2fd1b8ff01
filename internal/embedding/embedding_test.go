package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// fakeEmbedder is a scripted backend
type fakeEmbedder struct {
	calls   atomic.Int32
	embedFn func(call int, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	call := int(f.calls.Add(1))
	return f.embedFn(call, texts)
}

func lengths(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out
}

func fastOptions() Options {
	return Options{BatchSize: 2, MaxRetries: 3, BaseDelay: time.Millisecond}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder(64)
	a, err := h.Embed(context.Background(), []string{"Opening hours are 9 to 5", "Opening hours are 9 to 5"})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Len(t, a[0], 64)
	assert.Equal(t, a[0], a[1])

	var norm float64
	for _, x := range a[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHashEmbedderSimilarity(t *testing.T) {
	h := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimensions, h.Dimensions())

	v, err := h.Embed(context.Background(), []string{
		"what are your opening hours",
		"our opening hours are monday to friday",
		"we ship ceramics worldwide",
	})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	assert.Greater(t, dot(v[0], v[1]), dot(v[0], v[2]))
}

func TestHashEmbedderEmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v[0])
}

func TestResilientBatchesInOrder(t *testing.T) {
	fake := &fakeEmbedder{embedFn: func(_ int, texts []string) ([][]float32, error) {
		assert.LessOrEqual(t, len(texts), 2)
		return lengths(texts), nil
	}}
	r := NewResilient(fake, fastOptions())

	got, err := r.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, got)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	fake := &fakeEmbedder{embedFn: func(call int, texts []string) ([][]float32, error) {
		if call < 3 {
			return nil, errors.New("connection reset")
		}
		return lengths(texts), nil
	}}
	r := NewResilient(fake, fastOptions())

	got, err := r.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}}, got)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestResilientGivesUp(t *testing.T) {
	fake := &fakeEmbedder{embedFn: func(int, []string) ([][]float32, error) {
		return nil, errors.New("service unavailable")
	}}
	r := NewResilient(fake, fastOptions())

	_, err := r.Embed(context.Background(), []string{"abc"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(4), fake.calls.Load())
}

func TestResilientDoesNotRetryPermanent(t *testing.T) {
	fake := &fakeEmbedder{embedFn: func(int, []string) ([][]float32, error) {
		return nil, permanent(errors.New("invalid api key"))
	}}
	r := NewResilient(fake, fastOptions())

	_, err := r.Embed(context.Background(), []string{"abc"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestResilientIncomplete(t *testing.T) {
	fake := &fakeEmbedder{embedFn: func(_ int, texts []string) ([][]float32, error) {
		return lengths(texts)[:1], nil
	}}
	r := NewResilient(fake, fastOptions())

	_, err := r.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.NotErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestResilientHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeEmbedder{embedFn: func(int, []string) ([][]float32, error) {
		cancel()
		return nil, errors.New("boom")
	}}
	r := NewResilient(fake, Options{MaxRetries: 5, BaseDelay: time.Hour})

	_, err := r.Embed(ctx, []string{"abc"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestRetryDelay(t *testing.T) {
	base := 200 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, retryDelay(base, 0))
	assert.Equal(t, 800*time.Millisecond, retryDelay(base, 2))
	assert.Equal(t, 5*time.Second, retryDelay(base, 10))
	assert.Equal(t, 5*time.Second, retryDelay(base, 60))
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		// Reply out of order to check index matching
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text"})
	require.NoError(t, err)

	got, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
}

func TestOpenAIEmbedderUnauthorizedIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL + "/v1", APIKey: "nope"})
	require.NoError(t, err)

	_, err = NewResilient(e, fastOptions()).Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewFactory(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingConfig{Provider: "hash", Dimensions: 16}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hash", e.Name())

	_, err = New(context.Background(), config.EmbeddingConfig{Provider: "genai"}, nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	_, err = New(context.Background(), config.EmbeddingConfig{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	_, err = New(context.Background(), config.EmbeddingConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
