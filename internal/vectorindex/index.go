// Package vectorindex stores chunk embeddings in one isolated partition per
// bot and answers exact top-k similarity queries against a partition.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/domain"
)

// Metadata is stored alongside every vector record
type Metadata struct {
	BotID      string `json:"bot_id"`
	PageURL    string `json:"page_url"`
	ChunkIndex int    `json:"chunk_index"`
}

// Batch is a set of records inserted together. All slices are parallel.
type Batch struct {
	IDs      []string
	Texts    []string
	Vectors  [][]float32
	Metadata []Metadata
}

// Len returns the number of records in the batch
func (b Batch) Len() int { return len(b.IDs) }

// Validate checks the batch shape and returns the common vector dimension.
// An empty batch is valid and has dimension 0.
func (b Batch) Validate() (int, error) {
	n := len(b.IDs)
	if len(b.Texts) != n || len(b.Vectors) != n || len(b.Metadata) != n {
		return 0, fmt.Errorf("%w: batch lengths differ (ids=%d texts=%d vectors=%d metadata=%d)",
			domain.ErrDimensionMismatch, n, len(b.Texts), len(b.Vectors), len(b.Metadata))
	}
	if n == 0 {
		return 0, nil
	}
	dim := len(b.Vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}
	for i, v := range b.Vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

// Match is a query result. Higher Score means closer.
type Match struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64
}

// Index is a per-tenant vector store. A tenant is a bot id.
type Index interface {
	// Reset drops the tenant partition. Missing partitions are not an error.
	Reset(ctx context.Context, tenant string) error
	// InsertBatch adds records atomically. The first insert fixes the partition dimension.
	InsertBatch(ctx context.Context, tenant string, batch Batch) error
	// Query returns up to k records closest to vector, best first.
	// An empty or missing partition yields no matches and no error.
	Query(ctx context.Context, tenant string, vector []float32, k int) ([]Match, error)
	Close() error
}

// New creates the index backend selected by configuration
func New(ctx context.Context, cfg config.IndexConfig) (Index, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryIndex(metric), nil
	case "sqlite":
		idx, err := NewSQLiteIndex(cfg.SQLitePath, metric)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "qdrant":
		idx, err := NewQdrantIndex(ctx, cfg.Qdrant, metric)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}

func dimensionError(tenant string, got, want int) error {
	return fmt.Errorf("%w: partition %s has dimension %d, got %d", domain.ErrDimensionMismatch, tenant, want, got)
}
