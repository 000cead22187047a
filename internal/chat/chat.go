// Package chat runs the visitor-facing answer pipeline: session history,
// retrieval, generation, confidence gating, and the feedback loop on
// delivered answers.
package chat

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SourceRef is one citation on a delivered answer: the knowledge item it
// came from and the confidence the gate saw at answer time.
type SourceRef struct {
	SourceID        string  `json:"sourceId"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// AnswerMetadata is the gating record attached to an assistant message.
// It carries everything feedback adjustment and audit need: the cited
// sources, the aggregate confidence, and the pre-gate draft when the
// visible text was rewritten.
type AnswerMetadata struct {
	Sources             []SourceRef `json:"sources,omitempty"`
	AggregateConfidence *float64    `json:"confidenceScore,omitempty"`
	Gated               bool        `json:"gated,omitempty"`
	GateReason          string      `json:"gateReason,omitempty"`
	OriginalAnswer      string      `json:"originalAnswer,omitempty"`
}

// Feedback is a visitor's rating of one assistant message.
type Feedback struct {
	Rating    string    `json:"rating"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one entry in a session's history, stored as JSONB.
type Message struct {
	Role      string          `json:"role"`
	Text      string          `json:"text"`
	Metadata  *AnswerMetadata `json:"aiMetadata,omitempty"`
	Feedback  *Feedback       `json:"feedback,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Session is one visitor conversation bound to a connection.
type Session struct {
	ID           string
	SessionKey   string
	ConnectionID string
	Messages     []Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
