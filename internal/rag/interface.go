// Package rag holds the retrieval side of docchat: the vector index
// abstraction and its Qdrant, pgvector and in-memory implementations, the
// embedder contract, and the two-tier [Retriever].
//
// Every indexed point carries the identifier of the document it came from in
// its payload. Deletion is always by filter on that field, never by point id,
// so ingestion must set it on every point it writes.
package rag

import (
	"context"
	"errors"
	"fmt"
)

// Payload field names as stored in the index.
const (
	FieldDocID      = "doc_id"
	FieldText       = "text"
	FieldChunkID    = "chunk_id"
	FieldFilename   = "filename"
	FieldPage       = "page"
	FieldChunkIndex = "chunk_index"
)

// Sentinel errors shared by all [VectorIndex] implementations.
var (
	// ErrIndex wraps failures talking to the vector store backend.
	ErrIndex = errors.New("vector index unavailable")
	// ErrDimensionMismatch means a vector's length differs from the
	// collection dimension. It is returned before any backend call.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidFilter means the filter names a field that is not indexed.
	ErrInvalidFilter = errors.New("unsupported filter field")
)

// Payload is the typed metadata stored next to each vector.
type Payload struct {
	// DocID is the stable identifier of the source document.
	DocID string
	// Text is the chunk text.
	Text string
	// ChunkID is "<DocID>_chunk<ChunkIndex>".
	ChunkID string
	// Filename is the original upload name, used in citations.
	Filename string
	// Page is the 1-based source page, or 0 when the source has no pages.
	Page int
	// ChunkIndex is the 1-based position of the chunk within its document.
	ChunkIndex int
}

// Point is one vector to be written to the index.
type Point struct {
	// ID is a generated UUID, unique across the collection.
	ID string
	// Vector is the dense embedding of Payload.Text.
	Vector []float32
	// Payload is the metadata stored with the vector.
	Payload Payload
}

// Hit is one result of a search or scroll.
type Hit struct {
	// ID is the point identifier.
	ID string
	// Score is the cosine similarity, or nil when the backend returned none
	// (scroll results never carry a score).
	Score *float32
	// Payload is the stored metadata.
	Payload Payload
}

// Filter is a keyword-equality condition on a payload field.
type Filter struct {
	Field string
	Value string
}

// MatchDocID returns the filter selecting every point of one document.
func MatchDocID(docID string) Filter {
	return Filter{Field: FieldDocID, Value: docID}
}

// validate rejects filters on fields that are not keyword-indexed.
func (f Filter) validate() error {
	switch f.Field {
	case FieldDocID, FieldChunkID, FieldFilename:
		return nil
	default:
		return fmt.Errorf("rag: filter on %q: %w", f.Field, ErrInvalidFilter)
	}
}

// VectorIndex is a cosine-similarity collection of fixed dimension.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	// Dimension returns the configured vector length of the collection.
	Dimension() int

	// Upsert writes points, replacing any with the same ID. Points whose
	// vector length differs from Dimension are rejected with
	// ErrDimensionMismatch before anything is written.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to limit nearest points by cosine similarity, best
	// first. When floor is non-nil, hits scoring below *floor are dropped.
	Search(ctx context.Context, vector []float32, limit int, floor *float32) ([]Hit, error)

	// Scroll returns up to limit points matching filter (all points when
	// filter is nil) in storage order. Hits carry no score.
	Scroll(ctx context.Context, filter *Filter, limit int) ([]Hit, error)

	// DeleteByFilter removes every point matching f.
	DeleteByFilter(ctx context.Context, f Filter) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the index.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one input", len(vecs))
	}
	if len(vecs[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned an empty vector")
	}
	return vecs[0], nil
}

// checkDimensions returns ErrDimensionMismatch for the first point whose
// vector length is not dim.
func checkDimensions(points []Point, dim int) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("rag: point %s has %d dimensions, collection has %d: %w",
				p.ID, len(p.Vector), dim, ErrDimensionMismatch)
		}
	}
	return nil
}

// ChunkID formats the chunk identifier for the index-th chunk of a document.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk%d", docID, index)
}
