package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPersonalFact(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"My name is Kunal", true},
		{"call me Ash", true},
		{"I live in Pune", true},
		{"i work at a small startup", true},
		{"My favorite editor is vim", true},
		{"I'm allergic to peanuts", true},
		{"what is the capital of France", false},
		{"explain how goroutines work", false},
		{"deploy the service to staging", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, isPersonalFact(tt.text))
		})
	}
}

func TestParseFactLines(t *testing.T) {
	facts := parseFactLines("- User's name is Kunal\n2. User lives in Pune\n\nNONE\n* User prefers Go")
	assert.Equal(t, []string{"User's name is Kunal", "User lives in Pune", "User prefers Go"}, facts)

	assert.Empty(t, parseFactLines("NONE"))
	assert.Empty(t, parseFactLines(""))
}
