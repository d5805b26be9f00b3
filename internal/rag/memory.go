package rag

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
)

// MemoryIndex is an in-process [VectorIndex] using brute-force cosine
// similarity. It backs tests and `VECTOR_BACKEND=memory` for local runs;
// contents are lost on exit.
type MemoryIndex struct {
	mu     sync.RWMutex
	dim    int
	order  []string
	points map[string]Point
}

// NewMemoryIndex returns an empty index of the given dimension.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, points: make(map[string]Point)}
}

// Dimension returns the configured vector length.
func (m *MemoryIndex) Dimension() int { return m.dim }

// Upsert stores points after validating their dimension.
func (m *MemoryIndex) Upsert(_ context.Context, points []Point) error {
	if err := checkDimensions(points, m.dim); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if _, ok := m.points[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		p.Vector = slices.Clone(p.Vector)
		m.points[p.ID] = p
	}
	return nil
}

// Search ranks all points by cosine similarity to vector.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, limit int, floor *float32) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.points))
	for _, id := range m.order {
		p := m.points[id]
		score := cosine(vector, p.Vector)
		if floor != nil && score < *floor {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Score: &score, Payload: p.Payload})
	}
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(*b.Score, *a.Score) })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Scroll returns matching points in insertion order.
func (m *MemoryIndex) Scroll(_ context.Context, filter *Filter, limit int) ([]Hit, error) {
	if filter != nil {
		if err := filter.validate(); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, id := range m.order {
		p := m.points[id]
		if filter != nil && !matches(p.Payload, *filter) {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Payload: p.Payload})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// DeleteByFilter removes every matching point.
func (m *MemoryIndex) DeleteByFilter(_ context.Context, f Filter) error {
	if err := f.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	for _, id := range m.order {
		if matches(m.points[id].Payload, f) {
			delete(m.points, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

// Count returns the number of stored points.
func (m *MemoryIndex) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

// matches reports whether payload satisfies f.
func matches(p Payload, f Filter) bool {
	switch f.Field {
	case FieldDocID:
		return p.DocID == f.Value
	case FieldChunkID:
		return p.ChunkID == f.Value
	case FieldFilename:
		return p.Filename == f.Value
	}
	return false
}

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
