package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/logging"
)

// NewIngestCmd constructs the `docchat ingest` command, which indexes local
// documents and registers them exactly as an admin upload would.
func NewIngestCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index PDF or Word documents into the vector store",
		Long: `Extract, chunk, embed and index local .pdf and .docx files, and record
each one in the document registry so it shows up in the admin API.

A file whose text cannot be indexed is still recorded with rag_processed=false.

Examples:
  docchat ingest --file manuals/mounting.pdf
  docchat ingest -f a.pdf -f b.docx
  VECTOR_BACKEND=pgvector docchat ingest -f handbook.docx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			files = append(files, args...)
			if len(files) == 0 {
				return fmt.Errorf("ingest: at least one --file is required")
			}

			st, err := openStore(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = st.Close() }()

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer p.Close()

			in, err := newIngestor(p, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			var errs []error
			for _, path := range files {
				rec, chunks, err := recordDocument(ctx, in, st, path)
				if err != nil {
					log.Error("ingest failed", slog.String("file", path), slog.Any("error", err))
					errs = append(errs, err)
					continue
				}
				log.Info("document ingested",
					slog.String("file", path),
					slog.String("doc_id", rec.DocID),
					slog.Int("pages", rec.PageCount),
					slog.Int("chunks", chunks),
					slog.Bool("rag_processed", rec.RAGProcessed),
				)
			}
			if len(errs) > 0 {
				return fmt.Errorf("ingest: %d of %d files failed: %w", len(errs), len(files), errors.Join(errs...))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Document to ingest (repeatable; positional args also accepted)")

	return cmd
}
