package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
)

// NewWatchCmd constructs the `docchat watch` command, which ingests every
// .pdf or .docx file that lands in an inbox directory.
func NewWatchCmd() *cobra.Command {
	var dir string
	var settle time.Duration
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and ingest new documents as they arrive",
		Long: `Watch an inbox directory and ingest each new or rewritten .pdf or .docx
file once it has stopped changing. Files are recorded in the document
registry like uploads. Runs until interrupted.

Examples:
  docchat watch --dir ./inbox
  docchat watch --dir /srv/docs --initial --settle 5s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx).With(slog.String("dir", dir))
			ctx = logging.WithLogger(ctx, log)

			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				return fmt.Errorf("watch: %s is not a directory", dir)
			}

			st, err := openStore(log)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer func() { _ = st.Close() }()

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer p.Close()

			in, err := newIngestor(p, nil)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			handle := func(ctx context.Context, path string) error {
				rec, chunks, err := recordDocument(ctx, in, st, path)
				if err != nil {
					return err
				}
				logging.FromContext(ctx).Info("document ingested",
					slog.String("file", path),
					slog.String("doc_id", rec.DocID),
					slog.Int("chunks", chunks),
					slog.Bool("rag_processed", rec.RAGProcessed),
				)
				return nil
			}

			log.Info("watching for documents", slog.Duration("settle", settle), slog.Bool("initial", initial))
			w := ingestion.NewWatcher(dir, handle, ingestion.WatcherConfig{Settle: settle, Initial: initial})
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			log.Info("watcher stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "./inbox", "Directory to watch")
	cmd.Flags().DurationVar(&settle, "settle", ingestion.DefaultSettle, "Quiet period before a changed file is ingested")
	cmd.Flags().BoolVar(&initial, "initial", false, "Also ingest files already present at startup")

	return cmd
}
