// Package ingestion turns uploaded documents into indexed vectors:
// extract → chunk → embed (bounded concurrency) → batch upsert. Every point
// written carries the document identifier so the document can later be
// removed with a single delete-by-filter.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/54b3r/docchat-go/internal/chunker"
	"github.com/54b3r/docchat-go/internal/extract"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// ErrEmptyContent means extraction succeeded but produced no text.
var ErrEmptyContent = errors.New("document has no extractable text")

// Defaults applied by NewIngestor for zero Config fields.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 20
	DefaultBatchSize    = 64
	DefaultConcurrency  = 4
)

// Outcome classifies one ingestion attempt for metrics.
type Outcome string

const (
	OutcomeIndexed     Outcome = "indexed"
	OutcomeEmpty       Outcome = "empty"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeFailed      Outcome = "failed"
)

// Config holds the configuration for the ingestor.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk (default: 1000).
	ChunkSize int
	// ChunkOverlap is the number of characters shared by consecutive chunks
	// (default: 20). Negative disables overlap.
	ChunkOverlap int
	// BatchSize is the number of chunks per embedding call and per upsert
	// (default: 64).
	BatchSize int
	// Concurrency bounds the number of embedding calls in flight (default: 4).
	Concurrency int
	// RPS limits embedding calls per second across all documents. Zero
	// disables the limiter.
	RPS float64
	// ReplaceExisting deletes any vectors already stored under the document
	// id before writing new ones.
	ReplaceExisting bool
	// Observe, when set, is called once per Ingest with the outcome and the
	// number of chunks written.
	Observe func(Outcome, int)
}

// Request is one document to ingest.
type Request struct {
	// Data is the raw file content.
	Data []byte
	// Filename selects the parser by extension and is stored for citations.
	Filename string
	// DocID identifies the document in the index. A UUID is generated when
	// empty.
	DocID string
}

// Result describes a successful ingestion.
type Result struct {
	DocID     string
	Chunks    int
	PageCount int
}

// Document is the metadata record produced by Process for an upload.
type Document struct {
	DocID        string
	Filename     string
	SizeBytes    int64
	PageCount    int
	Chunks       int
	RAGProcessed bool
}

// Ingestor writes documents into a vector index. It is safe for concurrent
// use; the rate limiter is shared across calls.
type Ingestor struct {
	embedder rag.Embedder
	index    rag.VectorIndex
	cfg      Config
	limiter  *rate.Limiter
}

// NewIngestor constructs an Ingestor from the provided dependencies and config.
func NewIngestor(embedder rag.Embedder, index rag.VectorIndex, cfg Config) (*Ingestor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Observe == nil {
		cfg.Observe = func(Outcome, int) {}
	}

	in := &Ingestor{embedder: embedder, index: index, cfg: cfg}
	if cfg.RPS > 0 {
		in.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}
	return in, nil
}

// Ingest extracts, chunks, embeds and indexes one document. Errors are
// propagated: extract.ErrUnsupportedFormat, extract.ErrCorruptFile,
// ErrEmptyContent, embedder and index failures. When an upsert fails part way
// the vectors already written for the document are removed best-effort.
func (in *Ingestor) Ingest(ctx context.Context, req Request) (Result, error) {
	res, err := in.ingest(ctx, req)
	switch {
	case err == nil:
		in.cfg.Observe(OutcomeIndexed, res.Chunks)
	case errors.Is(err, extract.ErrUnsupportedFormat):
		in.cfg.Observe(OutcomeUnsupported, 0)
	case errors.Is(err, ErrEmptyContent):
		in.cfg.Observe(OutcomeEmpty, 0)
	default:
		in.cfg.Observe(OutcomeFailed, 0)
	}
	return res, err
}

func (in *Ingestor) ingest(ctx context.Context, req Request) (Result, error) {
	log := logging.FromContext(ctx)

	if _, err := extract.FormatOf(req.Filename); err != nil {
		return Result{}, err
	}
	text, err := extract.Extract(req.Data, req.Filename)
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: extract %s: %w", req.Filename, err)
	}
	if text.Blank() {
		return Result{}, fmt.Errorf("ingestion: %s: %w", req.Filename, ErrEmptyContent)
	}

	pieces := chunker.SplitPages(text.Pages, in.cfg.ChunkSize, in.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return Result{}, fmt.Errorf("ingestion: %s: %w", req.Filename, ErrEmptyContent)
	}
	if !text.Paged {
		for i := range pieces {
			pieces[i].Page = 0
		}
	}

	docID := req.DocID
	if docID == "" {
		docID = uuid.NewString()
	}
	log.Info("ingestion: chunked document",
		slog.String("doc_id", docID),
		slog.String("filename", req.Filename),
		slog.Int("pages", text.PageCount),
		slog.Int("chunks", len(pieces)),
	)

	vectors, err := in.embed(ctx, pieces)
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: embed %s: %w", req.Filename, err)
	}

	points := make([]rag.Point, len(pieces))
	for i, p := range pieces {
		if len(vectors[i]) != in.index.Dimension() {
			return Result{}, fmt.Errorf("ingestion: chunk %d has %d dimensions, index has %d: %w",
				i+1, len(vectors[i]), in.index.Dimension(), rag.ErrDimensionMismatch)
		}
		points[i] = rag.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: rag.Payload{
				DocID:      docID,
				Text:       p.Text,
				ChunkID:    rag.ChunkID(docID, i+1),
				Filename:   req.Filename,
				Page:       p.Page,
				ChunkIndex: i + 1,
			},
		}
	}

	if in.cfg.ReplaceExisting {
		if err := in.index.DeleteByFilter(ctx, rag.MatchDocID(docID)); err != nil {
			return Result{}, fmt.Errorf("ingestion: replace %s: %w", docID, err)
		}
	}

	if err := in.upsert(ctx, points); err != nil {
		if derr := in.index.DeleteByFilter(context.WithoutCancel(ctx), rag.MatchDocID(docID)); derr != nil {
			log.Warn("ingestion: cleanup after failed upsert failed",
				slog.String("doc_id", docID),
				slog.Any("error", derr),
			)
		}
		return Result{}, fmt.Errorf("ingestion: upsert %s: %w", req.Filename, err)
	}

	pageCount := text.PageCount
	if pageCount < 1 {
		pageCount = extract.EstimatePageCount(req.Data, req.Filename)
	}
	log.Info("ingestion: indexed document",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(points)),
	)
	return Result{DocID: docID, Chunks: len(points), PageCount: pageCount}, nil
}

// embed embeds pieces in batches with bounded concurrency. The result is
// parallel to pieces.
func (in *Ingestor) embed(ctx context.Context, pieces []chunker.Piece) ([][]float32, error) {
	vectors := make([][]float32, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)

	for start := 0; start < len(pieces); start += in.cfg.BatchSize {
		end := min(start+in.cfg.BatchSize, len(pieces))
		g.Go(func() error {
			if in.limiter != nil {
				if err := in.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			texts := make([]string, 0, end-start)
			for _, p := range pieces[start:end] {
				texts = append(texts, p.Text)
			}
			vecs, err := in.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// upsert writes points in BatchSize batches, in order.
func (in *Ingestor) upsert(ctx context.Context, points []rag.Point) error {
	for start := 0; start < len(points); start += in.cfg.BatchSize {
		end := min(start+in.cfg.BatchSize, len(points))
		if err := in.index.Upsert(ctx, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Process ingests an upload and always produces a metadata record unless
// the format is unsupported. Any other failure is logged and reported as a
// Document with RAGProcessed false and a page count estimated from the raw
// file, so the upload stays visible to administrators.
func (in *Ingestor) Process(ctx context.Context, req Request) (Document, error) {
	if _, err := extract.FormatOf(req.Filename); err != nil {
		in.cfg.Observe(OutcomeUnsupported, 0)
		return Document{}, err
	}
	if req.DocID == "" {
		req.DocID = uuid.NewString()
	}
	doc := Document{
		DocID:     req.DocID,
		Filename:  req.Filename,
		SizeBytes: int64(len(req.Data)),
	}

	res, err := in.Ingest(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Warn("ingestion: document stored without RAG processing",
			slog.String("doc_id", req.DocID),
			slog.String("filename", req.Filename),
			slog.Any("error", err),
		)
		if in.cfg.ReplaceExisting {
			// The record will describe this upload; vectors of the version it
			// replaces must not stay searchable.
			if derr := in.index.DeleteByFilter(context.WithoutCancel(ctx), rag.MatchDocID(req.DocID)); derr != nil {
				logging.FromContext(ctx).Warn("ingestion: failed to drop replaced vectors",
					slog.String("doc_id", req.DocID),
					slog.Any("error", derr),
				)
			}
		}
		doc.PageCount = extract.EstimatePageCount(req.Data, req.Filename)
		return doc, nil
	}

	doc.PageCount = res.PageCount
	doc.Chunks = res.Chunks
	doc.RAGProcessed = true
	return doc, nil
}

// ReplaceExisting reports whether a request naming an existing DocID
// replaces that document's vectors. Callers use it to decide whether a
// re-upload reuses the earlier document id.
func (in *Ingestor) ReplaceExisting() bool { return in.cfg.ReplaceExisting }

// Delete removes every vector of the document.
func (in *Ingestor) Delete(ctx context.Context, docID string) error {
	if docID == "" {
		return fmt.Errorf("ingestion: empty document id")
	}
	if err := in.index.DeleteByFilter(ctx, rag.MatchDocID(docID)); err != nil {
		return fmt.Errorf("ingestion: delete %s: %w", docID, err)
	}
	return nil
}
