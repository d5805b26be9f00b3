package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docchat-go/internal/logging"
)

const (
	// DefaultTopK is the number of references returned when callers pass 0.
	DefaultTopK = 5
	// DefaultScoreFloor is the similarity floor of the first search tier.
	DefaultScoreFloor float32 = 0.1
	// DefaultPage is reported when the index holds no page provenance.
	DefaultPage = 1
	// PlaceholderScore is reported when the index omits a similarity score.
	PlaceholderScore float32 = 0.8
)

// Reference is one citation returned to callers: which document and chunk a
// retrieved passage came from and how similar it was to the query.
type Reference struct {
	DocID    string  `json:"doc_id"`
	Filename string  `json:"filename"`
	Page     int     `json:"page"`
	ChunkID  string  `json:"chunk_id"`
	Score    float32 `json:"score"`
}

// Tier identifies which search pass produced a retrieval result.
type Tier string

const (
	TierThreshold Tier = "threshold"
	TierFallback  Tier = "fallback"
	TierNone      Tier = "none"
	TierError     Tier = "error"
)

// RetrieverConfig tunes the two-tier policy.
type RetrieverConfig struct {
	// TopK is the default result count (default: 5).
	TopK int
	// ScoreFloor is the first-tier similarity floor. Nil selects
	// DefaultScoreFloor; a negative value disables the first tier so every
	// search is unthresholded. Zero is a real floor.
	ScoreFloor *float32
	// Observe, when set, is called once per search with the tier that
	// produced the result.
	Observe func(Tier)
}

// Retriever turns a query into citation references. It embeds the query,
// searches with a similarity floor, and if that yields nothing usable repeats
// the search without the floor.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	topK     int
	floor    *float32
	observe  func(Tier)
}

// NewRetriever constructs a Retriever from the given Embedder and VectorIndex.
func NewRetriever(embedder Embedder, index VectorIndex, cfg RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	r := &Retriever{embedder: embedder, index: index, topK: cfg.TopK, observe: cfg.Observe}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	switch {
	case cfg.ScoreFloor == nil:
		f := DefaultScoreFloor
		r.floor = &f
	case *cfg.ScoreFloor >= 0:
		f := *cfg.ScoreFloor
		r.floor = &f
	}
	if r.observe == nil {
		r.observe = func(Tier) {}
	}
	return r, nil
}

// Search returns at most topK references for query, best first. It never
// fails: embedding or index errors are logged and produce an empty result,
// which callers treat as "no grounding available".
func (r *Retriever) Search(ctx context.Context, query string, topK int) []Reference {
	refs, tier, err := r.search(ctx, query, topK)
	if err != nil {
		logging.FromContext(ctx).Warn("retrieval failed",
			slog.Any("error", err),
		)
		r.observe(TierError)
		return nil
	}
	r.observe(tier)
	return refs
}

// search runs the two tiers and reports which one produced the result.
func (r *Retriever) search(ctx context.Context, query string, topK int) ([]Reference, Tier, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if strings.TrimSpace(query) == "" {
		return nil, TierNone, nil
	}

	vec, err := EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, TierError, fmt.Errorf("rag: embed query: %w", err)
	}

	if r.floor != nil {
		hits, err := r.index.Search(ctx, vec, topK, r.floor)
		if err != nil {
			return nil, TierError, fmt.Errorf("rag: thresholded search: %w", err)
		}
		if refs := toReferences(hits, topK); len(refs) > 0 {
			return refs, TierThreshold, nil
		}
	}

	hits, err := r.index.Search(ctx, vec, topK, nil)
	if err != nil {
		return nil, TierError, fmt.Errorf("rag: fallback search: %w", err)
	}
	refs := toReferences(hits, topK)
	if len(refs) == 0 {
		return nil, TierNone, nil
	}
	return refs, TierFallback, nil
}

// toReferences drops blank-text hits, caps the result at limit, and fills in
// the default page and score where the index had none.
func toReferences(hits []Hit, limit int) []Reference {
	refs := make([]Reference, 0, min(len(hits), limit))
	for _, h := range hits {
		if len(refs) == limit {
			break
		}
		if strings.TrimSpace(h.Payload.Text) == "" {
			continue
		}
		ref := Reference{
			DocID:    h.Payload.DocID,
			Filename: h.Payload.Filename,
			Page:     h.Payload.Page,
			ChunkID:  h.Payload.ChunkID,
			Score:    PlaceholderScore,
		}
		if ref.Filename == "" {
			ref.Filename = ref.DocID
		}
		if ref.Page <= 0 {
			ref.Page = DefaultPage
		}
		if h.Score != nil {
			ref.Score = *h.Score
		}
		refs = append(refs, ref)
	}
	return refs
}
