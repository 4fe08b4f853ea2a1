package models

import (
	"time"
)

// SearchMode selects which retrieval paths a memory search uses.
type SearchMode string

const (
	ModeVector  SearchMode = "vector"
	ModeLexical SearchMode = "lexical"
	ModeHybrid  SearchMode = "hybrid"
)

// ValidSearchModes is the set of all valid search modes.
var ValidSearchModes = []SearchMode{
	ModeVector,
	ModeLexical,
	ModeHybrid,
}

// IsValid returns true if the search mode is recognized.
func (m SearchMode) IsValid() bool {
	for _, v := range ValidSearchModes {
		if m == v {
			return true
		}
	}
	return false
}

// UsesVector reports whether the mode includes the vector path.
func (m SearchMode) UsesVector() bool { return m == ModeVector || m == ModeHybrid }

// UsesLexical reports whether the mode includes the lexical path.
func (m SearchMode) UsesLexical() bool { return m == ModeLexical || m == ModeHybrid }

// Retention controls how long a stored memory lives.
type Retention string

const (
	RetentionDefault  Retention = "default"
	RetentionLongTerm Retention = "long_term"
	RetentionSession  Retention = "session"
)

// ValidRetentions is the set of all valid retention policies.
var ValidRetentions = []Retention{
	RetentionDefault,
	RetentionLongTerm,
	RetentionSession,
}

// IsValid returns true if the retention policy is recognized.
func (r Retention) IsValid() bool {
	for _, v := range ValidRetentions {
		if r == v {
			return true
		}
	}
	return false
}

// MemoryRecord is one persisted fragment of a past interaction.
// Records are owned exclusively by OwnerID; no cross-owner access is ever
// permitted. A record is never mutated after creation except to flip Active
// to false or to extend ExpiresAt on re-access.
type MemoryRecord struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"embedding,omitempty"` // nil when embedding failed
	Importance     float64   `json:"importance"`          // [0,1]
	Tags           []string  `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"` // zero = never expires
	Active         bool      `json:"active"`
	InactiveAt     time.Time `json:"inactive_at,omitempty"` // set when Active flips to false
}

// Expired reports whether the record's expiry has passed as of now.
func (m MemoryRecord) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// MemoryQuery describes one retrieval request against an owner's memories.
type MemoryQuery struct {
	OwnerID       string     `json:"owner_id"`
	Text          string     `json:"query"`
	Embedding     []float32  `json:"embedding,omitempty"` // computed from Text when nil
	Limit         int        `json:"limit"`
	MinSimilarity float64    `json:"min_similarity"`
	Mode          SearchMode `json:"mode"`
}

// ScoredMemory is a MemoryRecord with its retrieval scores.
// Similarity is in [0,1]; Rank combines similarity, importance, and recency.
type ScoredMemory struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
	Rank       float64      `json:"rank"`
}

// StoreStats holds summary statistics about the memory collection.
type StoreStats struct {
	TotalRecords   int64            `json:"total_records"`
	ActiveRecords  int64            `json:"active_records"`
	RecordsByOwner map[string]int64 `json:"records_by_owner,omitempty"`
}
