// Package budget provides token budget estimation for the script writer.
// Because the writer supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose). This deliberately under-estimates
// token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// tokensPerMinute is the output budget per minute of target lesson
	// duration. Narrated lessons run about 150 spoken words per minute;
	// with directive markup on top that is roughly 250 tokens.
	tokensPerMinute = 250

	// minScriptTokens and maxScriptTokens clamp the duration-derived budget
	// so very short or very long requests still produce workable scripts.
	minScriptTokens = 512
	maxScriptTokens = 4096
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// MaxScriptTokens returns the output token budget for a lesson of the given
// target duration in seconds. A non-positive duration gets the minimum
// budget; long durations are clamped so a single request can never demand an
// unbounded generation.
func MaxScriptTokens(durationSeconds int) int {
	if durationSeconds <= 0 {
		return minScriptTokens
	}
	tokens := durationSeconds * tokensPerMinute / 60
	if tokens < minScriptTokens {
		return minScriptTokens
	}
	if tokens > maxScriptTokens {
		return maxScriptTokens
	}
	return tokens
}
