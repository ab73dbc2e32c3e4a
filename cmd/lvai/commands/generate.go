package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/pipeline"
)

// NewGenerateCmd constructs the `lvai generate` command, which runs one
// lesson prompt through the full pipeline and prints the assembled document.
func NewGenerateCmd() *cobra.Command {
	var subject string
	var durationSeconds int
	var indexWaitSeconds int
	var outFile string

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate a lesson script with inline visual aids",
		Long: `Generate a narrated lesson script for a prompt.

The pipeline researches openly licensed images for the topic, indexes them,
writes the script with the configured LLM, resolves each visual directive
against the index, and injects the resulting media references into the script.
A lesson degrades rather than fails: directives that cannot be matched stay
as placeholders in the output.

Examples:
  lvai generate "the water cycle"
  lvai generate --subject biology --duration 300 "how photosynthesis works"
  lvai generate --index-wait 30 -o lesson.md "plate tectonics"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			stk, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			defer stk.cleanup()

			doc, err := stk.pipeline.Generate(ctx, pipeline.Request{
				Prompt:          args[0],
				Subject:         subject,
				DurationSeconds: durationSeconds,
				IndexWait:       time.Duration(indexWaitSeconds) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			fulfilled := 0
			for _, slot := range doc.ImageSlots {
				if slot.Status == pipeline.SlotFulfilled {
					fulfilled++
				}
			}
			fmt.Fprintf(os.Stderr, "lesson %s: %d images indexed, %d/%d directives fulfilled\n",
				doc.ID, doc.IndexedImageCount, fulfilled, len(doc.ImageSlots))

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(doc.Content), 0o644); err != nil {
					return fmt.Errorf("generate: write %q: %w", outFile, err)
				}
				fmt.Fprintf(os.Stderr, "written to %s\n", outFile)
				return nil
			}

			fmt.Println(doc.Content)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Subject area used to narrow image research")
	cmd.Flags().IntVarP(&durationSeconds, "duration", "d", 0, "Target narration length in seconds")
	cmd.Flags().IntVar(&indexWaitSeconds, "index-wait", 0, "Seconds to wait for image indexing (default: 90)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the lesson to a file instead of stdout")

	return cmd
}
