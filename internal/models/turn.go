package models

import (
	"encoding/json"
	"time"
)

// Turn captures one persisted request/response exchange for a user.
// Immutable once stored.
type Turn struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Message   string          `json:"message"`
	Response  string          `json:"response"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ConversationContext is the transient per-request view of a user's short-term
// history: a rolling summary plus the most recent turns, oldest first.
type ConversationContext struct {
	Summary     string `json:"summary"`
	RecentTurns []Turn `json:"recent_turns"`
}

// RetrievalResult is one passage returned by the vector index, with its
// relevance score. Higher scores rank first.
type RetrievalResult struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
