// Package knowledge manages the knowledge store: durable units of content
// scoped to a connection, each carrying a trust status, a visibility state,
// a confidence score, and a content fingerprint used for drift detection.
package knowledge

import (
	"time"
)

// Source kinds: where the content came from.
const (
	SourceURL  = "URL"
	SourceText = "TEXT"
)

// Trust status values.
//
// PENDING items are mid-ingest, READY items are fully processed, FAILED
// items could not be processed, STALE items have drifted from their live
// source. STALE is a freshness signal and does not revoke trust.
const (
	StatusPending = "PENDING"
	StatusReady   = "READY"
	StatusFailed  = "FAILED"
	StatusStale   = "STALE"
)

// Visibility states. SHADOW items exist but must never be cited in a
// visible answer; ACTIVE items are citable.
const (
	VisibilityShadow = "SHADOW"
	VisibilityActive = "ACTIVE"
)

// DefaultConfidence is the initial confidence score of newly promoted
// knowledge.
const DefaultConfidence = 0.5

// Item is a unit of retrievable content owned by a connection.
type Item struct {
	ID           string
	ConnectionID string
	SourceKind   string
	SourceValue  string
	RawText      string
	CleanedText  string
	Status       string
	Visibility   string

	// ConfidenceScore is in [0.0, 1.0]. Mutated only by feedback
	// adjustment.
	ConfidenceScore float64

	// ContentHash is the fingerprint of the cleaned content at the last
	// successful ingest or drift check.
	ContentHash string

	// LastCheckedAt is the time of the last drift check, nil before the
	// first check.
	LastCheckedAt *time.Time

	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Citation is a retrieval result handed to the answering layer: the
// minimum a caller needs to cite a knowledge item and gate on it.
type Citation struct {
	ID              string
	Content         string
	ConfidenceScore float64
}
