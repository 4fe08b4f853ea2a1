package classifier

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentientmesh/synapse/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClassify_Types(t *testing.T) {
	c := NewClassifier(testLogger())

	tests := []struct {
		name        string
		text        string
		wantType    models.QueryType
		wantMemory  bool
		wantLookup  bool
	}{
		{"personal", "Do you know my name?", models.QueryPersonal, true, false},
		{"personal remember", "remember that I prefer tea", models.QueryPersonal, true, false},
		{"instructional", "How do I set up a reverse proxy?", models.QueryInstructional, false, false},
		{"fresh", "What is the latest Go release?", models.QueryFresh, false, true},
		{"general", "Tell me a story about a lighthouse", models.QueryGeneral, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text, "")
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMemory, got.NeedsMemory)
			assert.Equal(t, tt.wantLookup, got.NeedsExternalLookup)
		})
	}
}

// A query matching both personal and freshness signals classifies as personal
// (precedence) but still flags the external lookup.
func TestClassify_PrecedencePersonalOverFresh(t *testing.T) {
	c := NewClassifier(testLogger())

	got := c.Classify("What is my favorite team's score today?", "")
	assert.Equal(t, models.QueryPersonal, got.Type)
	assert.True(t, got.NeedsMemory)
	assert.True(t, got.NeedsExternalLookup)
}

func TestClassify_PrecedencePersonalOverInstructional(t *testing.T) {
	c := NewClassifier(testLogger())

	got := c.Classify("Explain how to pronounce my name", "")
	assert.Equal(t, models.QueryPersonal, got.Type)
}

// Deterministic: same input, same output, on repeated calls.
func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(testLogger())

	first := c.Classify("How do I bake bread today?", "")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify("How do I bake bread today?", ""))
	}
}

func TestClassify_HistorySummaryContributes(t *testing.T) {
	c := NewClassifier(testLogger())

	got := c.Classify("And what about the second one?", "user asked about my favorite books")
	assert.Equal(t, models.QueryPersonal, got.Type)
}
