package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/liliang-cn/sitebot/internal/config"
)

const (
	payloadID         = "id"
	payloadText       = "text"
	payloadBotID      = "bot_id"
	payloadPageURL    = "page_url"
	payloadChunkIndex = "chunk_index"
)

// QdrantIndex maps every tenant to its own qdrant collection.
type QdrantIndex struct {
	client *qdrant.Client
	prefix string
	metric Metric
}

func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, metric Metric) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}
	return &QdrantIndex{client: client, prefix: cfg.CollectionPrefix, metric: metric}, nil
}

func (q *QdrantIndex) collection(tenant string) string {
	return q.prefix + tenant
}

func (q *QdrantIndex) distance() qdrant.Distance {
	if q.metric == L2 {
		return qdrant.Distance_Euclid
	}
	return qdrant.Distance_Cosine
}

func (q *QdrantIndex) Reset(ctx context.Context, tenant string) error {
	name := q.collection(tenant)
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// dimension returns the collection vector size, or 0 if it does not exist.
func (q *QdrantIndex) dimension(ctx context.Context, name string) (int, error) {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return 0, nil
	}
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

func (q *QdrantIndex) InsertBatch(ctx context.Context, tenant string, batch Batch) error {
	dim, err := batch.Validate()
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	name := q.collection(tenant)
	existing, err := q.dimension(ctx, name)
	if err != nil {
		return err
	}
	switch {
	case existing == 0:
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: q.distance(),
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	case existing != dim:
		return dimensionError(tenant, dim, existing)
	}

	points := make([]*qdrant.PointStruct, 0, batch.Len())
	for i, id := range batch.IDs {
		md := batch.Metadata[i]
		payload, err := qdrant.TryValueMap(map[string]any{
			payloadID:         id,
			payloadText:       batch.Texts[i],
			payloadBotID:      md.BotID,
			payloadPageURL:    md.PageURL,
			payloadChunkIndex: md.ChunkIndex,
		})
		if err != nil {
			return fmt.Errorf("invalid payload for record %s: %w", id, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(id)),
			Vectors: qdrant.NewVectorsDense(batch.Vectors[i]),
			Payload: payload,
		})
	}

	// Wait so the batch is searchable when the call returns
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", name, err)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, tenant string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	name := q.collection(tenant)
	dim, err := q.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(vector) != dim {
		return nil, dimensionError(tenant, len(vector), dim)
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		score := float64(p.GetScore())
		if q.metric == L2 {
			score = -score
		}
		matches = append(matches, Match{
			ID:   payload[payloadID].GetStringValue(),
			Text: payload[payloadText].GetStringValue(),
			Metadata: Metadata{
				BotID:      payload[payloadBotID].GetStringValue(),
				PageURL:    payload[payloadPageURL].GetStringValue(),
				ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
			},
			Score: score,
		})
	}
	return matches, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID derives a stable qdrant point id from a record id
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}
