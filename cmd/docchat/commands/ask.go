package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/tracing"
)

var (
	sourceHeading = color.New(color.FgCyan, color.Bold).SprintFunc()
	sourceName    = color.New(color.FgGreen).SprintFunc()
	sourceScore   = color.New(color.FgYellow).SprintFunc()
	branchNote    = color.New(color.Faint).SprintFunc()
)

// NewAskCmd constructs the `docchat ask` command, which runs one chat turn
// against the indexed documents and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var showBranch bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Long: `Answer one question from the indexed documents and print the cited sources.

Examples:
  docchat ask "Which anchors are rated for drywall?"
  docchat ask --branch "How high should a wall sign be mounted?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer p.Close()

			composer, _, err := newComposer(ctx, log, p, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			res := composer.Answer(ctx, strings.Join(args, " "))
			printAnswer(cmd.OutOrStdout(), res, showBranch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showBranch, "branch", false, "Print which answer path was taken")

	return cmd
}

// printAnswer writes the reply followed by a numbered source list.
func printAnswer(w io.Writer, res chat.Result, showBranch bool) {
	fmt.Fprintln(w, strings.TrimSpace(res.Text))
	if showBranch {
		fmt.Fprintln(w, branchNote("["+string(res.Branch)+"]"))
	}
	if len(res.References) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, sourceHeading("Sources"))
	for i, ref := range res.References {
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, sourceName(citation(ref)), sourceScore(fmt.Sprintf("(%.2f)", ref.Score)))
	}
}

// citation renders "file.pdf p.3".
func citation(ref rag.Reference) string {
	name := ref.Filename
	if name == "" {
		name = ref.DocID
	}
	if ref.Page > 0 {
		return fmt.Sprintf("%s p.%d", name, ref.Page)
	}
	return name
}
