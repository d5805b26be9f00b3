package rag

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorConfig holds connection parameters for a PostgreSQL database with
// the pgvector extension.
type PgVectorConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string
	// Table is the chunk table name (default: chunks).
	Table string
	// VectorSize is the embedding dimension of the vector column.
	VectorSize int
}

// tableName restricts table identifiers to plain SQL names since they are
// interpolated into DDL.
var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// PgVectorIndex implements VectorIndex on a pgvector table, using the
// `<=>` cosine distance operator. Scores are reported as 1 - distance.
type PgVectorIndex struct {
	pool  *pgxpool.Pool
	table string
	dim   int
}

// NewPgVectorIndex connects to PostgreSQL and creates the extension, table
// and indexes if they do not exist.
func NewPgVectorIndex(ctx context.Context, cfg *PgVectorConfig) (*PgVectorIndex, error) {
	if cfg.Table == "" {
		cfg.Table = "chunks"
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("pgvector: vector size must be positive, got %d", cfg.VectorSize)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %v: %w", err, ErrIndex)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %v: %w", err, ErrIndex)
	}

	idx := &PgVectorIndex{pool: pool, table: cfg.Table, dim: cfg.VectorSize}
	if err := idx.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// migrate applies the schema idempotently.
func (p *PgVectorIndex) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
	id          UUID PRIMARY KEY,
	doc_id      TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	filename    TEXT NOT NULL DEFAULT '',
	page        INTEGER NOT NULL DEFAULT 0,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	text        TEXT NOT NULL,
	embedding   vector(%[2]d) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[1]s_doc_id_idx ON %[1]s (doc_id);
CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, p.table, p.dim)

	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: migrate: %v: %w", err, ErrIndex)
	}
	return nil
}

// Pool exposes the connection pool for health probes.
func (p *PgVectorIndex) Pool() *pgxpool.Pool { return p.pool }

// Dimension returns the vector column dimension.
func (p *PgVectorIndex) Dimension() int { return p.dim }

// Upsert writes all points in one batch.
func (p *PgVectorIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := checkDimensions(points, p.dim); err != nil {
		return err
	}

	q := fmt.Sprintf(`
INSERT INTO %s (id, doc_id, chunk_id, filename, page, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	doc_id = EXCLUDED.doc_id,
	chunk_id = EXCLUDED.chunk_id,
	filename = EXCLUDED.filename,
	page = EXCLUDED.page,
	chunk_index = EXCLUDED.chunk_index,
	text = EXCLUDED.text,
	embedding = EXCLUDED.embedding`, p.table)

	batch := &pgx.Batch{}
	for _, pt := range points {
		pl := pt.Payload
		batch.Queue(q, pt.ID, pl.DocID, pl.ChunkID, pl.Filename, pl.Page, pl.ChunkIndex,
			pl.Text, pgvector.NewVector(pt.Vector))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector: upsert: %v: %w", err, ErrIndex)
	}
	return nil
}

// Search orders rows by cosine distance and applies the optional floor on
// the derived similarity.
func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, limit int, floor *float32) ([]Hit, error) {
	args := []any{pgvector.NewVector(vector), max(limit, 1)}
	where := ""
	if floor != nil {
		where = "WHERE 1 - (embedding <=> $1) >= $3"
		args = append(args, *floor)
	}
	q := fmt.Sprintf(`
SELECT id::text, doc_id, chunk_id, filename, page, chunk_index, text,
       (1 - (embedding <=> $1))::real AS score
FROM %s
%s
ORDER BY embedding <=> $1
LIMIT $2`, p.table, where)

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %v: %w", err, ErrIndex)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var score float32
		if err := rows.Scan(&h.ID, &h.Payload.DocID, &h.Payload.ChunkID, &h.Payload.Filename,
			&h.Payload.Page, &h.Payload.ChunkIndex, &h.Payload.Text, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %v: %w", err, ErrIndex)
		}
		h.Score = &score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %v: %w", err, ErrIndex)
	}
	return hits, nil
}

// Scroll returns rows in insertion order, optionally filtered.
func (p *PgVectorIndex) Scroll(ctx context.Context, filter *Filter, limit int) ([]Hit, error) {
	var args []any
	where := ""
	if filter != nil {
		if err := filter.validate(); err != nil {
			return nil, err
		}
		where = fmt.Sprintf("WHERE %s = $1", filter.Field)
		args = append(args, filter.Value)
	}
	lim := ""
	if limit > 0 {
		args = append(args, limit)
		lim = fmt.Sprintf("LIMIT $%d", len(args))
	}
	q := fmt.Sprintf(`
SELECT id::text, doc_id, chunk_id, filename, page, chunk_index, text
FROM %s
%s
ORDER BY created_at, chunk_index
%s`, p.table, where, lim)

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: scroll: %v: %w", err, ErrIndex)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Payload.DocID, &h.Payload.ChunkID, &h.Payload.Filename,
			&h.Payload.Page, &h.Payload.ChunkIndex, &h.Payload.Text); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %v: %w", err, ErrIndex)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: scroll rows: %v: %w", err, ErrIndex)
	}
	return hits, nil
}

// DeleteByFilter removes every matching row.
func (p *PgVectorIndex) DeleteByFilter(ctx context.Context, f Filter) error {
	if err := f.validate(); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", p.table, f.Field)
	if _, err := p.pool.Exec(ctx, q, f.Value); err != nil {
		return fmt.Errorf("pgvector: delete %s=%s: %v: %w", f.Field, f.Value, err, ErrIndex)
	}
	return nil
}

// Count returns the number of rows.
func (p *PgVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", p.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: count: %v: %w", err, ErrIndex)
	}
	return n, nil
}

// Close closes the connection pool.
func (p *PgVectorIndex) Close() error {
	p.pool.Close()
	return nil
}
