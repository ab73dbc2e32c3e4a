package vecindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize caps the number of points sent per Qdrant upsert call.
const upsertBatchSize = 100

// QdrantConfig holds connection parameters for a Qdrant index instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index backed by a Qdrant instance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// Client exposes the underlying gRPC client for health probes.
func (ix *QdrantIndex) Client() *qdrant.Client {
	return ix.client
}

// NewQdrantIndex creates a new QdrantIndex, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use Index.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores or updates a batch of records in chunks. Each Record must
// carry a pre-computed Vector; a vector whose length does not match the
// configured size aborts the whole call with a DimensionError.
func (s *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		if uint64(len(rec.Vector)) != s.cfg.VectorSize {
			return &DimensionError{Want: s.cfg.VectorSize, Got: len(rec.Vector)}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(recordPayload(rec)),
		})
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Points:         points[start:end],
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}

	return nil
}

// recordPayload flattens a record into the point payload, dropping empty
// metadata values so the payload stays compact.
func recordPayload(rec Record) map[string]interface{} {
	payload := map[string]interface{}{
		"image_url":       rec.ImageURL,
		"topic_id":        rec.TopicID,
		"original_prompt": rec.OriginalPrompt,
	}
	for k, v := range rec.Metadata {
		if v == "" {
			continue
		}
		payload[k] = v
	}
	return payload
}

// Search performs a cosine similarity search restricted to the given topic
// and returns the top-k records. Vectors are not returned with the results.
func (s *QdrantIndex) Search(ctx context.Context, queryEmbedding []float32, topicID string, topK int) ([]Record, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         topicFilter(topicID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		rec := Record{
			ID:       r.Id.GetUuid(),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["image_url"]; ok {
				rec.ImageURL = v.GetStringValue()
			}
			if v, ok := p["topic_id"]; ok {
				rec.TopicID = v.GetStringValue()
			}
			if v, ok := p["original_prompt"]; ok {
				rec.OriginalPrompt = v.GetStringValue()
			}
			for k, v := range p {
				if k != "image_url" && k != "topic_id" && k != "original_prompt" {
					rec.Metadata[k] = v.GetStringValue()
				}
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

// DeleteByTopic removes every record indexed under the given topic.
func (s *QdrantIndex) DeleteByTopic(ctx context.Context, topicID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(topicFilter(topicID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by topic failed: %w", err)
	}

	return nil
}

// topicFilter builds the exact-match filter that scopes a query to one topic.
func topicFilter(topicID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("topic_id", topicID),
		},
	}
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}
