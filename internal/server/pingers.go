package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
)

// contextPinger is any dependency exposing a context-aware Ping.
// *provider.Completer and *store.SQLiteStore satisfy it.
type contextPinger interface {
	Ping(ctx context.Context) error
}

// LLMPinger probes the chat model backend with a single-token generate
// request. It consumes a token per probe, so it is only registered when
// readiness should cover the model.
type LLMPinger struct {
	// completer is the model wrapper to probe.
	completer contextPinger
	// name identifies the backend in readiness responses (e.g. "openai").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given completer and backend name.
func NewLLMPinger(c contextPinger, name string) *LLMPinger {
	return &LLMPinger{completer: c, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends the probe request.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.completer.Ping(ctx); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

// StorePinger probes the SQLite metadata store.
type StorePinger struct {
	// store is the metadata store to probe.
	store contextPinger
}

// NewStorePinger constructs a StorePinger.
func NewStorePinger(s contextPinger) *StorePinger {
	return &StorePinger{store: s}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "sqlite" }

// Ping checks the database connection.
func (p *StorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// PgVectorPinger probes the PostgreSQL pool backing the pgvector index.
type PgVectorPinger struct {
	// pool is the connection pool to probe.
	pool *pgxpool.Pool
}

// NewPgVectorPinger constructs a PgVectorPinger for the given pool.
func NewPgVectorPinger(pool *pgxpool.Pool) *PgVectorPinger {
	return &PgVectorPinger{pool: pool}
}

// Name returns the dependency label used in readiness responses.
func (p *PgVectorPinger) Name() string { return "pgvector" }

// Ping acquires a connection and round-trips to the server.
func (p *PgVectorPinger) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
