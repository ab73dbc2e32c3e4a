// Package commands defines all Cobra CLI commands for the lvai binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lektor-ai/lvai-go/internal/audit"
	"github.com/lektor-ai/lvai-go/internal/config"
	"github.com/lektor-ai/lvai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lvai",
		Short: "LV-AI — lesson scripts with researched and generated visuals",
		Long: `LV-AI generates narrated lesson scripts with inline visual aids.

For each lesson prompt it researches openly licensed images, indexes them in
a topic-scoped vector index, writes the script with an LLM, and resolves each
visual directive in the script against the indexed images — optionally
restyling them through an image transformation service.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.lvai/config.yaml).
See 'lvai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load a local .env first so its values participate in the
			// env-over-YAML precedence. Missing file is fine.
			_ = godotenv.Load()

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.lvai/config.yaml)")

	root.AddCommand(
		NewGenerateCmd(),
		NewIndexCmd(),
		NewServeCmd(),
		NewDiagnoseCmd(),
		NewVersionCmd(),
	)

	return root
}
