package memory

import "strings"

// Phrases that mark a statement as a durable personal fact. Matching is on
// the lowercased text; order does not matter.
var personalFactMarkers = []string{
	"my name is",
	"call me",
	"i live in",
	"i'm from",
	"i am from",
	"i work",
	"my birthday",
	"my favorite",
	"my favourite",
	"i prefer",
	"i like",
	"i dislike",
	"i hate",
	"i am allergic",
	"i'm allergic",
	"my email",
	"my phone",
}

// isPersonalFact reports whether the text states a fact about the owner
// worth keeping long-term, such as a name, location, or preference.
func isPersonalFact(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range personalFactMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
