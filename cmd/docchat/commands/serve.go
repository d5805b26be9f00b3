package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/auth"
	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/server"
	"github.com/54b3r/docchat-go/internal/tracing"
)

// NewServeCmd constructs the `docchat serve` command, which wires the full
// stack and runs the HTTP API until interrupted.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docchat HTTP API",
		Long: `Start the docchat HTTP API.

The server exposes login, threads and chat turns for users and document and
user administration for admins, plus /api/health, /api/ready and /metrics.

JWT_SECRET must be set. Create the first admin with 'docchat user create'.

Examples:
  docchat serve
  docchat serve --port 9090
  VECTOR_BACKEND=pgvector PGVECTOR_DSN=postgres://... docchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			issuer, err := auth.NewIssuer(config.String("JWT_SECRET", ""), config.Duration("JWT_TTL", auth.DefaultTTL))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			st, err := openStore(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = st.Close() }()

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer p.Close()

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)

			ingestor, err := newIngestor(p, metrics)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			composer, completer, err := newComposer(ctx, log, p, metrics)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{server.NewStorePinger(st)}
			switch idx := p.index.(type) {
			case *rag.QdrantIndex:
				pingers = append(pingers, server.NewQdrantPinger(idx.Client()))
			case *rag.PgVectorIndex:
				pingers = append(pingers, server.NewPgVectorPinger(idx.Pool()))
			}
			if config.Bool("DOCCHAT_READY_LLM", false) {
				pingers = append(pingers, server.NewLLMPinger(completer, completer.Name()))
			}

			if !cmd.Flags().Changed("host") {
				host = config.String("DOCCHAT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("DOCCHAT_PORT", port)
			}

			srv, err := server.New(server.Deps{
				Store:     st,
				Answerer:  composer,
				Documents: ingestor,
				Issuer:    issuer,
			}, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        pingers,
				RateLimit:      float64(config.Float32("DOCCHAT_RATE_LIMIT", 0)),
				RateBurst:      config.Int("DOCCHAT_RATE_BURST", 0),
				TrustProxy:     config.Bool("DOCCHAT_TRUST_PROXY", false),
				UploadMaxBytes: int64(config.Int("DOCCHAT_UPLOAD_MAX_MB", 50)) << 20,
				Metrics:        metrics,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind to (env: DOCCHAT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (env: DOCCHAT_PORT)")

	return cmd
}
