// Package scriptwriter generates lesson scripts with inline visual-aid
// directives using an Eino chat model. The writer is the external
// collaborator of the resolution pipeline: it produces the raw script text
// that the tag parser and resolver then turn into a finished lesson.
package scriptwriter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/lektor-ai/lvai-go/internal/budget"
	"github.com/lektor-ai/lvai-go/internal/logging"
)

// systemPrompt establishes the writer's persona and teaches it the inline
// image directive grammar the rest of the pipeline parses.
const systemPrompt = `You are LV-AI, an experienced curriculum writer producing narrated lesson
scripts for students. You write clear, engaging, factually careful prose that
a narrator can read aloud.

Wherever a visual aid would help the learner, insert an inline image
directive at the exact point in the narration where the visual should appear:

[IMAGE id="img_1" prompt="labeled diagram of the water cycle" query="water cycle diagram" style="flat illustration" aspect="16:9"]

Directive rules:
- Every directive is a single [IMAGE ...] block with key="value" attributes.
- "prompt" is required: a self-contained description of the desired visual.
- "id" must be unique within the script (img_1, img_2, ...).
- "query" is optional: shorter search keywords when they differ from the prompt.
- "style" and "aspect" are optional; aspect is W:H, e.g. "4:3" or "16:9".
- Use 2-5 directives per lesson, at the moments they support the narration.
- Never place two directives back to back; narration must surround them.

Output rules:
- Return ONLY the lesson script text with inline directives.
- No markdown headings, no metadata preamble, no closing remarks about the
  script itself.`

// Writer produces a lesson script for a user prompt. Implementations must be
// safe to call from multiple goroutines.
type Writer interface {
	// GenerateScript returns the raw script text for the prompt, sized for
	// the target duration in seconds (0 = default length).
	GenerateScript(ctx context.Context, prompt string, durationSeconds int) (string, error)
}

// EinoWriter implements Writer over an Eino chat model.
type EinoWriter struct {
	// chatModel is the LLM backend constructed by the provider factory.
	chatModel model.ToolCallingChatModel
}

// New constructs an EinoWriter from the given chat model.
func New(chatModel model.ToolCallingChatModel) (*EinoWriter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("scriptwriter: chat model must not be nil")
	}
	return &EinoWriter{chatModel: chatModel}, nil
}

// GenerateScript sends the prompt to the model and returns the script text.
// The output token budget is derived from the target duration.
func (w *EinoWriter) GenerateScript(ctx context.Context, prompt string, durationSeconds int) (string, error) {
	log := logging.FromContext(ctx)
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("scriptwriter: prompt must not be empty")
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage(prompt, durationSeconds)),
	}
	maxTokens := budget.MaxScriptTokens(durationSeconds)

	log.Debug("scriptwriter: generating script",
		slog.Int("prompt_tokens_est", budget.EstimateMessages(messages)),
		slog.Int("max_output_tokens", maxTokens),
	)

	resp, err := w.chatModel.Generate(ctx, messages, model.WithMaxTokens(maxTokens))
	if err != nil {
		return "", fmt.Errorf("scriptwriter: generate failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("scriptwriter: model returned an empty script")
	}

	return strings.TrimSpace(resp.Content), nil
}

// userMessage frames the user prompt with the duration target.
func userMessage(prompt string, durationSeconds int) string {
	if durationSeconds <= 0 {
		return fmt.Sprintf("Write a lesson script about: %s", prompt)
	}
	return fmt.Sprintf("Write a lesson script about: %s\n\nTarget narration length: about %d minute(s).",
		prompt, (durationSeconds+59)/60)
}
