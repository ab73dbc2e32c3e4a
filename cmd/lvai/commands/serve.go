package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/server"
	"github.com/lektor-ai/lvai-go/internal/store"
	"github.com/lektor-ai/lvai-go/internal/tracing"
)

// NewServeCmd constructs the `lvai serve` command, which starts the HTTP
// server exposing lesson generation and history as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LV-AI HTTP server",
		Long: `Start the LV-AI HTTP server on localhost.

The server exposes lesson generation (POST /api/generate), lesson history
(GET /api/lessons), readiness and liveness probes, and Prometheus metrics.

Examples:
  lvai serve
  lvai serve --port 9090
  MODEL_PROVIDER=openai lvai serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			stk, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stk.cleanup()

			// Open lesson history store. LVAI_HISTORY_DB overrides the default
			// path (~/.lvai/history.db). Set to "disabled" to turn history off.
			var historyStore store.LessonStore
			dbPath := os.Getenv("LVAI_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via LVAI_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(stk.model, envOrDefault("MODEL_PROVIDER", "ollama")),
				server.NewQdrantPinger(stk.index.Client()),
			}
			if stk.backend != nil {
				pingers = append(pingers, server.NewTransformPinger(stk.backend))
			}

			srv, err := server.New(stk.pipeline, historyStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("LVAI_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
