// Package commands defines all Cobra CLI commands for the docchat binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/audit"
	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/logging"
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath string
	var envFile string

	root := &cobra.Command{
		Use:   "docchat",
		Short: "docchat answers questions from your technical documents",
		Long: `docchat indexes PDF and Word documents into a vector store and answers
questions about them with citations.

Settings are read from environment variables, a .env file and an optional
YAML or TOML config file (~/.docchat/config.yaml). Environment variables
always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log, envFile); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			// LOG_LEVEL may have come from the files loaded above.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(cmd.Context(), log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML or TOML config file (default: ~/.docchat/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; skipped when missing")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewWatchCmd(),
		NewAskCmd(),
		NewUserCmd(),
		NewVersionCmd(),
	)

	return root
}
