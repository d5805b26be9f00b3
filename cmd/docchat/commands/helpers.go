package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/54b3r/docchat-go/internal/budget"
	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/provider"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/server"
	"github.com/54b3r/docchat-go/internal/store"
)

// Vector backends selectable with VECTOR_BACKEND.
const (
	backendQdrant   = "qdrant"
	backendPgVector = "pgvector"
	backendMemory   = "memory"
)

// pipeline is the retrieval stack shared by serve, ingest, watch and ask.
type pipeline struct {
	embedder rag.Embedder
	index    rag.VectorIndex
	backend  string
}

// Close releases the vector index connection.
func (p *pipeline) Close() {
	if p.index != nil {
		_ = p.index.Close()
	}
}

// buildPipeline constructs the embedder and the vector index sized to its
// output dimension.
func buildPipeline(ctx context.Context, log *slog.Logger) (*pipeline, error) {
	emb, settings, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embedder.Warn(log, settings, os.Getenv("EMBEDDING_PROVIDER") != "")
	log.Info("embedder initialised",
		slog.String("backend", settings.Backend),
		slog.String("model", settings.Model),
		slog.Int("dimensions", settings.Dimensions),
	)

	backend := config.String("VECTOR_BACKEND", backendQdrant)
	idx, err := buildIndex(ctx, backend, settings.Dimensions)
	if err != nil {
		return nil, err
	}
	log.Info("vector index ready", slog.String("backend", backend))
	return &pipeline{embedder: emb, index: idx, backend: backend}, nil
}

// buildIndex connects the vector index selected by backend.
func buildIndex(ctx context.Context, backend string, dim int) (rag.VectorIndex, error) {
	switch backend {
	case backendQdrant:
		host := config.String("QDRANT_HOST", "localhost")
		port := config.Int("QDRANT_PORT", 6334)
		idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: config.String("QDRANT_COLLECTION", "documents"),
			VectorSize: dim,
			APIKey:     config.String("QDRANT_API_KEY", ""),
			UseTLS:     config.Bool("QDRANT_TLS", false),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		return idx, nil
	case backendPgVector:
		dsn := config.String("PGVECTOR_DSN", "")
		if dsn == "" {
			return nil, fmt.Errorf("PGVECTOR_DSN is required when VECTOR_BACKEND=pgvector")
		}
		idx, err := rag.NewPgVectorIndex(ctx, &rag.PgVectorConfig{
			DSN:        dsn,
			Table:      config.String("PGVECTOR_TABLE", "chunks"),
			VectorSize: dim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open pgvector index: %w", err)
		}
		return idx, nil
	case backendMemory:
		return rag.NewMemoryIndex(dim), nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q (want qdrant, pgvector or memory)", backend)
	}
}

// newIngestor builds the document ingestor from RAG_* settings. metrics may
// be nil.
func newIngestor(p *pipeline, metrics *server.Metrics) (*ingestion.Ingestor, error) {
	return ingestion.NewIngestor(p.embedder, p.index, ingestion.Config{
		ChunkSize:       config.Int("RAG_CHUNK_SIZE", ingestion.DefaultChunkSize),
		ChunkOverlap:    config.Int("RAG_CHUNK_OVERLAP", ingestion.DefaultChunkOverlap),
		BatchSize:       config.Int("RAG_EMBED_BATCH", ingestion.DefaultBatchSize),
		Concurrency:     config.Int("RAG_EMBED_CONCURRENCY", ingestion.DefaultConcurrency),
		RPS:             float64(config.Float32("RAG_EMBED_RPS", 0)),
		ReplaceExisting: config.Bool("RAG_REPLACE_EXISTING", false),
		Observe:         metrics.ObserveIngest,
	})
}

// newComposer builds the chat model, the retriever and the answer composer.
// It also returns the completer so serve can probe the model for readiness.
func newComposer(ctx context.Context, log *slog.Logger, p *pipeline, metrics *server.Metrics) (*chat.Composer, *provider.Completer, error) {
	chatModel, pcfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	completer := provider.NewCompleter(chatModel, string(pcfg.Backend))
	log.Info("provider initialised",
		slog.String("provider", string(pcfg.Backend)),
		slog.String("model", pcfg.ModelName()),
	)

	topK := config.Int("RAG_TOP_K", rag.DefaultTopK)
	floor := config.Float32("RAG_SCORE_FLOOR", rag.DefaultScoreFloor)
	temperature := config.Float32("ANSWER_TEMPERATURE", chat.DefaultTemperature)
	retriever, err := rag.NewRetriever(p.embedder, p.index, rag.RetrieverConfig{
		TopK:       topK,
		ScoreFloor: &floor,
		Observe:    metrics.ObserveTier,
	})
	if err != nil {
		return nil, nil, err
	}

	counter, err := budget.NewCounter(config.String("RAG_TOKENIZER", ""))
	if err != nil {
		return nil, nil, err
	}
	composer, err := chat.NewComposer(retriever, p.embedder, p.index, completer, chat.Config{
		TopK:          topK,
		MaxTokens:     config.Int("ANSWER_MAX_TOKENS", chat.DefaultMaxTokens),
		Temperature:   &temperature,
		ContextTokens: config.Int("ANSWER_CONTEXT_TOKENS", budget.DefaultContextTokens),
		Counter:       counter,
		Observe:       metrics.ObserveBranch,
	})
	if err != nil {
		return nil, nil, err
	}
	return composer, completer, nil
}

// openStore opens the SQLite store at DOCCHAT_DB_PATH, or ~/.docchat/docchat.db.
func openStore(log *slog.Logger) (*store.SQLiteStore, error) {
	path := config.String("DOCCHAT_DB_PATH", "")
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", slog.String("path", path))
	return st, nil
}

// recordDocument ingests the file at path and registers it in the document
// store, mirroring an admin upload. It is shared by ingest and watch.
func recordDocument(ctx context.Context, in *ingestion.Ingestor, st *store.SQLiteStore, path string) (store.Document, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.Document{}, 0, fmt.Errorf("read %s: %w", path, err)
	}
	rec, doc, err := server.RegisterDocument(ctx, st, in, ingestion.Request{Data: data, Filename: filepath.Base(path)})
	if err != nil {
		return store.Document{}, 0, fmt.Errorf("record %s: %w", path, err)
	}
	return rec, doc.Chunks, nil
}
