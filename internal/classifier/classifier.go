package classifier

import (
	"log/slog"
	"strings"

	"github.com/sentientmesh/synapse/internal/models"
)

// Classifier determines the intent type of a chat query.
type Classifier interface {
	Classify(text, historySummary string) models.ClassifiedQuery
}

// HeuristicClassifier uses keyword-based rules for classification.
// It is pure and deterministic: no I/O, no clock, no randomness.
type HeuristicClassifier struct {
	logger *slog.Logger
}

// NewClassifier creates a new heuristic-based classifier.
func NewClassifier(logger *slog.Logger) *HeuristicClassifier {
	return &HeuristicClassifier{logger: logger}
}

// personalPatterns match first/second-person phrasing about the user.
var personalPatterns = []string{
	"my name", "my birthday", "my favorite", "my favourite", "my job",
	"my wife", "my husband", "my family", "my dog", "my cat",
	"about me", "do you know me", "do you remember", "remember me",
	"remember that", "remember my", "who am i", "call me",
	"i told you", "i mentioned", "as i said",
}

// instructionalPatterns match imperative teaching phrasing.
var instructionalPatterns = []string{
	"how do i", "how to", "how can i", "explain", "teach me",
	"show me how", "walk me through", "what is the difference",
	"step by step", "tutorial", "guide me", "help me understand",
}

// freshnessPatterns match temporal keywords that demand current data.
var freshnessPatterns = []string{
	"today", "latest", "current", "right now", "this week",
	"breaking", "news", "recent", "yesterday", "tonight",
	"weather", "stock price", "score",
}

// Classify maps raw query text (plus an optional short history summary) to a
// ClassifiedQuery. Ties resolve by fixed precedence:
//
//	personal > instructional > fresh > general
//
// The precedence is load-bearing: it decides whether memory retrieval or an
// external lookup is consulted when a query matches more than one signal.
func (c *HeuristicClassifier) Classify(text, historySummary string) models.ClassifiedQuery {
	lower := strings.ToLower(text)
	if historySummary != "" {
		lower += " " + strings.ToLower(historySummary)
	}

	personal := countMatches(lower, personalPatterns)
	instructional := countMatches(lower, instructionalPatterns)
	fresh := countMatches(lower, freshnessPatterns)

	cq := models.ClassifiedQuery{
		Text: text,
		Type: models.QueryGeneral,
	}

	switch {
	case personal > 0:
		cq.Type = models.QueryPersonal
		cq.NeedsMemory = true
	case instructional > 0:
		cq.Type = models.QueryInstructional
	case fresh > 0:
		cq.Type = models.QueryFresh
	}

	// Freshness keywords flag an external lookup even when a stronger signal
	// decided the type; a personal query about "today" still needs both.
	cq.NeedsExternalLookup = fresh > 0

	if c.logger != nil {
		c.logger.Debug("classified query",
			"type", cq.Type,
			"needs_memory", cq.NeedsMemory,
			"needs_lookup", cq.NeedsExternalLookup,
			"text_prefix", truncate(text, 60))
	}
	return cq
}

func countMatches(lower string, patterns []string) int {
	n := 0
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}
