// Package extraction handles untrusted candidate facts: intake from the
// widget under a capability token, storage as pending review items, and
// the review state machine that promotes approved content.
package extraction

import (
	"encoding/json"
	"time"
)

// Submission sources.
const (
	SourceWidget = "WIDGET"
	SourceManual = "MANUAL"
)

// Extractor types. Each type carries its own payload shape; see payload.go.
const (
	TypeMetadata   = "METADATA"
	TypeBranding   = "BRANDING"
	TypeKnowledge  = "KNOWLEDGE"
	TypeNavigation = "NAVIGATION"
	TypeForm       = "FORM"
)

// Review status values. PENDING is the only non-terminal state; an item
// is reviewed exactly once.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Review actions.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// PendingExtraction is an untrusted candidate fact awaiting review.
type PendingExtraction struct {
	ID            string
	ConnectionID  string
	Source        string
	ExtractorType string

	// RawData is the extractor-type-keyed payload, stored verbatim so
	// reviewers see exactly what the widget submitted.
	RawData json.RawMessage

	PageURL *string
	Status  string

	ReviewedBy  *string
	ReviewedAt  *time.Time
	ReviewNotes *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
