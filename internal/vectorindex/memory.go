package vectorindex

import (
	"context"
	"sync"
)

// MemoryIndex keeps partitions in process memory and scores by brute force.
type MemoryIndex struct {
	mu         sync.RWMutex
	metric     Metric
	partitions map[string]*partition
}

type partition struct {
	dimension int
	records   []record
	positions map[string]int
}

type record struct {
	id       string
	text     string
	metadata Metadata
	vector   []float32
}

func NewMemoryIndex(metric Metric) *MemoryIndex {
	return &MemoryIndex{
		metric:     metric,
		partitions: make(map[string]*partition),
	}
}

func (m *MemoryIndex) Reset(_ context.Context, tenant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, tenant)
	return nil
}

func (m *MemoryIndex) InsertBatch(_ context.Context, tenant string, batch Batch) error {
	dim, err := batch.Validate()
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[tenant]
	if ok && p.dimension != dim {
		return dimensionError(tenant, dim, p.dimension)
	}
	if !ok {
		p = &partition{dimension: dim, positions: make(map[string]int)}
		m.partitions[tenant] = p
	}

	for i, id := range batch.IDs {
		r := record{
			id:       id,
			text:     batch.Texts[i],
			metadata: batch.Metadata[i],
			vector:   append([]float32(nil), batch.Vectors[i]...),
		}
		// Re-inserting an id replaces the record in place
		if pos, exists := p.positions[id]; exists {
			p.records[pos] = r
			continue
		}
		p.positions[id] = len(p.records)
		p.records = append(p.records, r)
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, tenant string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[tenant]
	if !ok || len(p.records) == 0 {
		return nil, nil
	}
	if len(vector) != p.dimension {
		return nil, dimensionError(tenant, len(vector), p.dimension)
	}

	matches := make([]Match, 0, len(p.records))
	for _, r := range p.records {
		matches = append(matches, Match{
			ID:       r.id,
			Text:     r.text,
			Metadata: r.metadata,
			Score:    m.metric.Score(vector, r.vector),
		})
	}
	return topK(matches, k), nil
}

// Len returns the number of records stored for tenant
func (m *MemoryIndex) Len(tenant string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.partitions[tenant]; ok {
		return len(p.records)
	}
	return 0
}

func (m *MemoryIndex) Close() error { return nil }
