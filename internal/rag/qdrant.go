package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use (default: documents).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant collection.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant, creates the collection if necessary, and
// makes sure the doc_id payload field has a keyword index so filtered scrolls
// and deletes stay cheap.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive, got %d", cfg.VectorSize)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %v: %w", err, ErrIndex)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return idx, nil
}

// Client exposes the underlying client for health probes.
func (s *QdrantIndex) Client() *qdrant.Client { return s.client }

// ensureCollection creates the collection and its doc_id keyword index if
// they do not already exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %v: %w", err, ErrIndex)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.cfg.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %v: %w", s.cfg.Collection, err, ErrIndex)
		}
	}

	wait := true
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		FieldName:      FieldDocID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s: %v: %w", FieldDocID, err, ErrIndex)
	}
	return nil
}

// Dimension returns the collection vector size.
func (s *QdrantIndex) Dimension() int { return s.cfg.VectorSize }

// Upsert writes points and waits for the write to be applied so subsequent
// reads observe it.
func (s *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := checkDimensions(points, s.cfg.VectorSize); err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payloadMap(p.Payload)),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %v: %w", err, ErrIndex)
	}
	return nil
}

// Search performs a cosine similarity query, optionally with a score threshold.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, floor *float32) ([]Hit, error) {
	lim := uint64(max(limit, 1))
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		ScoreThreshold: floor,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %v: %w", err, ErrIndex)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		score := r.GetScore()
		hits = append(hits, Hit{
			ID:      pointID(r.GetId()),
			Score:   &score,
			Payload: decodePayload(r.GetPayload()),
		})
	}
	return hits, nil
}

// Scroll pages through the collection, optionally filtered on a keyword field.
func (s *QdrantIndex) Scroll(ctx context.Context, filter *Filter, limit int) ([]Hit, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if limit > 0 {
		lim := uint32(limit)
		req.Limit = &lim
	}
	if filter != nil {
		if err := filter.validate(); err != nil {
			return nil, err
		}
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(filter.Field, filter.Value)},
		}
	}

	results, err := s.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %v: %w", err, ErrIndex)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      pointID(r.GetId()),
			Payload: decodePayload(r.GetPayload()),
		})
	}
	return hits, nil
}

// DeleteByFilter removes every point whose payload field equals the value.
func (s *QdrantIndex) DeleteByFilter(ctx context.Context, f Filter) error {
	if err := f.validate(); err != nil {
		return err
	}
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(f.Field, f.Value)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %s=%s failed: %v: %w", f.Field, f.Value, err, ErrIndex)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %v: %w", err, ErrIndex)
	}
	return int(n), nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// payloadMap converts a Payload into the map accepted by qdrant.NewValueMap.
func payloadMap(p Payload) map[string]any {
	return map[string]any{
		FieldDocID:      p.DocID,
		FieldText:       p.Text,
		FieldChunkID:    p.ChunkID,
		FieldFilename:   p.Filename,
		FieldPage:       int64(p.Page),
		FieldChunkIndex: int64(p.ChunkIndex),
	}
}

// decodePayload reads a Qdrant payload back into a Payload. Missing fields
// stay at their zero value.
func decodePayload(m map[string]*qdrant.Value) Payload {
	return Payload{
		DocID:      m[FieldDocID].GetStringValue(),
		Text:       m[FieldText].GetStringValue(),
		ChunkID:    m[FieldChunkID].GetStringValue(),
		Filename:   m[FieldFilename].GetStringValue(),
		Page:       int(m[FieldPage].GetIntegerValue()),
		ChunkIndex: int(m[FieldChunkIndex].GetIntegerValue()),
	}
}

// pointID renders a Qdrant point id, which may be a UUID or an integer.
func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}
