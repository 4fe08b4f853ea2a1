package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))

	short := EstimateTokens("hello world")
	assert.Greater(t, short, 0)

	long := EstimateTokens(strings.Repeat("hello world ", 50))
	assert.Greater(t, long, short)
}

func TestTruncateToTokenBudget(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 100)

	assert.Equal(t, "", TruncateToTokenBudget(text, 0))
	assert.Equal(t, "short", TruncateToTokenBudget("short", 100))

	truncated := TruncateToTokenBudget(text, 20)
	assert.Less(t, len(truncated), len(text))
	assert.True(t, strings.HasSuffix(truncated, "..."))
	// Truncation lands on a word boundary, not mid-word.
	trimmed := strings.TrimSuffix(truncated, "...")
	assert.False(t, strings.HasSuffix(trimmed, " "))
}

func TestFormatMemoriesWithBudget(t *testing.T) {
	memories := []string{
		"User's name is Kunal",
		"User prefers concise answers",
		strings.Repeat("a very long memory entry ", 200),
	}

	formatted, count := FormatMemoriesWithBudget(memories, 50)
	assert.Equal(t, 2, count)
	assert.Contains(t, formatted, "Kunal")
	assert.Contains(t, formatted, "\n---\n")
	assert.NotContains(t, formatted, "a very long memory entry")

	_, count = FormatMemoriesWithBudget(memories, 0)
	assert.Equal(t, 0, count)

	formatted, count = FormatMemoriesWithBudget(nil, 100)
	assert.Equal(t, 0, count)
	assert.Equal(t, "", formatted)
}

func TestFormatMemoriesWithBudgetOrderPreserved(t *testing.T) {
	formatted, count := FormatMemoriesWithBudget([]string{"first", "second"}, 1000)
	assert.Equal(t, 2, count)
	assert.Less(t, strings.Index(formatted, "first"), strings.Index(formatted, "second"))
}
