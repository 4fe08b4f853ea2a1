// Package tokenizer estimates token counts and fits text into token
// budgets without depending on a model-specific tokenizer. Estimates
// are deliberately rough; callers use them to bound prompt size, not
// to bill usage.
package tokenizer

import (
	"strings"
)

// EstimateTokens returns an approximate token count for text. It blends
// a word-based estimate (~1.3 tokens per word) with a character-based
// one (~4 characters per token), which tracks real tokenizers closely
// enough for budgeting English prose.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	wordEstimate := int(float64(len(strings.Fields(text))) * 1.3)
	charEstimate := len(text) / 4
	return (wordEstimate + charEstimate) / 2
}

// TruncateToTokenBudget cuts text down to roughly fit budget tokens,
// preferring a word boundary and appending an ellipsis when truncated.
func TruncateToTokenBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}

	truncated := text[:maxChars]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// FormatMemoriesWithBudget joins memory snippets with "---" separators,
// stopping before the cumulative estimate exceeds budget. It returns
// the joined text and how many snippets fit. Snippets are taken in
// order, so callers should pass them ranked best-first.
func FormatMemoriesWithBudget(memories []string, budget int) (string, int) {
	if budget <= 0 || len(memories) == 0 {
		return "", 0
	}

	var builder strings.Builder
	count := 0
	used := 0
	for _, mem := range memories {
		cost := EstimateTokens(mem) + 2 // separator overhead
		if used+cost > budget {
			break
		}
		if count > 0 {
			builder.WriteString("\n---\n")
		}
		builder.WriteString(mem)
		used += cost
		count++
	}
	return builder.String(), count
}
