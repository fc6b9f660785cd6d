// Package commands defines all Cobra CLI commands for the scichat binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/scichat/scichat-go/internal/audit"
	"github.com/scichat/scichat-go/internal/config"
	"github.com/scichat/scichat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scichat",
		Short: "SciChat — conversational Q&A over your scientific papers",
		Long: `SciChat is a local-first assistant for reading scientific papers.

Upload a PDF and SciChat extracts its title, authors, organizations, and
contact emails, chunks the full text, and indexes everything into a vector
store. You can then ask natural language questions — about the paper's
content or its metadata — across multi-turn conversations.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.scichat/config.yaml).
See 'scichat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.scichat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewSummarizeCmd(),
		NewVersionCmd(),
	)

	return root
}
