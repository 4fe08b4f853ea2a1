package models

import "time"

// QueryType classifies the intent of a chat query.
type QueryType string

const (
	QueryPersonal      QueryType = "personal"
	QueryInstructional QueryType = "instructional"
	QueryFresh         QueryType = "fresh"
	QueryGeneral       QueryType = "general"
)

// ValidQueryTypes is the set of all valid query types.
var ValidQueryTypes = []QueryType{
	QueryPersonal,
	QueryInstructional,
	QueryFresh,
	QueryGeneral,
}

// IsValid returns true if the query type is recognized.
func (qt QueryType) IsValid() bool {
	for _, v := range ValidQueryTypes {
		if qt == v {
			return true
		}
	}
	return false
}

// ClassifiedQuery is the classifier's verdict on one raw query.
type ClassifiedQuery struct {
	Text                string    `json:"text"`
	Type                QueryType `json:"type"`
	NeedsMemory         bool      `json:"needs_memory"`
	NeedsExternalLookup bool      `json:"needs_external_lookup"`
}

// ChatRequest is one inbound chat turn.
type ChatRequest struct {
	OwnerID        string `json:"owner_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Provider and Model, when set, pin the first candidate of the fallback
	// chain. They are honored only if the provider is registered, healthy,
	// and within rate limit.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ChatResponse is the orchestrator's answer to one chat turn.
// Degraded is true only when every candidate was skipped or failed; the
// caller never receives an empty success.
type ChatResponse struct {
	Content      string    `json:"content"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	QueryType    QueryType `json:"query_type"`
	MemoriesUsed int       `json:"memories_used"`
	Attempts     int       `json:"attempts"`
	Degraded     bool      `json:"degraded"`
}

// ProviderProfile is the static catalog entry for one backend.
// Immutable after config load; owned by the provider registry.
type ProviderProfile struct {
	Name       string      `json:"name"`
	Models     []string    `json:"models"` // ordered, first is the default
	Affinities []QueryType `json:"affinities"`
	Priority   int         `json:"priority"` // lower tries first
}

// ProviderHealth is a read-only snapshot of one provider's rolling health.
type ProviderHealth struct {
	Available     bool      `json:"available"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	FailureRate   float64   `json:"failure_rate"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}
