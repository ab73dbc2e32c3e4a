package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/pipeline"
)

// NewIndexCmd constructs the `lvai index` command, which researches and
// indexes images for a topic without generating a lesson. Useful for warming
// the index ahead of a live session.
func NewIndexCmd() *cobra.Command {
	var subject string
	var purge bool

	cmd := &cobra.Command{
		Use:   "index [prompt]",
		Short: "Research and index images for a lesson topic",
		Long: `Research image candidates for a lesson prompt and index them into the
topic-scoped vector index, without generating a lesson.

The topic identity is derived from the normalized prompt, so a later
'lvai generate' with the same prompt resolves against the images indexed here.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: lesson-images)
  EMBEDDING_PROVIDER   Embedding backend: jina, azure, custom (default: jina)

Examples:
  lvai index "the water cycle"
  lvai index --subject biology "how photosynthesis works"
  lvai index --purge "plate tectonics"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			prompt := args[0]
			topicID := pipeline.TopicID(prompt)

			emb, idx, err := buildIndexStack(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer idx.Close()

			if purge {
				if err := idx.DeleteByTopic(ctx, topicID); err != nil {
					return fmt.Errorf("index: purge topic: %w", err)
				}
				log.Info("topic purged", slog.String("topic_id", topicID))
			}

			indexer, pool, err := buildIndexer(ctx, log, emb, idx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer pool.Close()

			job := indexer.NewJob(topicID, prompt, subject)
			if err := pool.Submit(job); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			result, err := job.Wait(ctx, -1)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Printf("topic %s: %d candidates researched, %d indexed\n",
				result.TopicID, len(result.Candidates), result.IndexedCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Subject area used to narrow image research")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete previously indexed images for this topic first")

	return cmd
}
