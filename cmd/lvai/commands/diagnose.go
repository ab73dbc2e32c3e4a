package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lektor-ai/lvai-go/internal/embedder"
	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/provider"
	"github.com/lektor-ai/lvai-go/internal/server"
)

// diagnoseTimeout bounds each individual dependency probe.
const diagnoseTimeout = 10 * time.Second

// NewDiagnoseCmd constructs the `lvai diagnose` command, which checks every
// configured dependency and reports what works and what does not.
func NewDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check connectivity to the configured model, index, and services",
		Long: `Probe every dependency the pipeline needs and report the results.

Checks the model provider, the embedding configuration, the Qdrant index, and
the image transformation backend (when configured). Useful before a live
session or when 'lvai generate' produces degraded lessons.

Examples:
  lvai diagnose
  MODEL_PROVIDER=openai lvai diagnose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			failed := 0
			report := func(name string, err error) {
				if err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "FAIL  %-10s %v\n", name, err)
					return
				}
				fmt.Printf("OK    %s\n", name)
			}

			// Embedding config is checked before anything that needs the
			// network, so credential mistakes surface first.
			report("embedding", embedder.ValidateForIndexing(log))

			providerName := envOrDefault("MODEL_PROVIDER", "ollama")
			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				report(providerName, err)
			} else {
				probeCtx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
				report(providerName, server.NewLLMPinger(chatModel, providerName).Ping(probeCtx))
				cancel()
			}

			_, idx, err := buildIndexStack(ctx)
			if err != nil {
				report("qdrant", err)
			} else {
				probeCtx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
				report("qdrant", server.NewQdrantPinger(idx.Client()).Ping(probeCtx))
				cancel()
				_ = idx.Close()
			}

			if backend := buildTransformBackend(log); backend != nil {
				probeCtx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
				report("transform", server.NewTransformPinger(backend).Ping(probeCtx))
				cancel()
			}

			if failed > 0 {
				return fmt.Errorf("diagnose: %d check(s) failed", failed)
			}
			fmt.Println("all checks passed")
			return nil
		},
	}
}
