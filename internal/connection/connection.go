// Package connection manages tenant records: one connection per embedded
// assistant installation, carrying presentation fields, extraction
// enablement, and the per-connection confidence gate policy.
package connection

import (
	"time"
)

// Connection status values.
//
// CREATED → CONNECTED happens on the first widget handshake;
// EXTRACTION_REQUESTED → READY happens when the widget submits extraction
// results; FAILED is set by operators when an installation is abandoned.
const (
	StatusCreated             = "CREATED"
	StatusConnected           = "CONNECTED"
	StatusExtractionRequested = "EXTRACTION_REQUESTED"
	StatusReady               = "READY"
	StatusFailed              = "FAILED"
)

// Connection is a tenant: one site-owner's assistant configuration and
// knowledge scope.
type Connection struct {
	ID                     string
	WebsiteName            *string
	WebsiteDescription     *string
	AssistantName          string
	WelcomeMessage         string
	LogoURL                *string
	Status                 string
	WidgetSeen             bool
	ExtractionEnabled      bool
	AllowedExtractors      []string
	ExtractionToken        *string
	ExtractionTokenExpires *time.Time

	// AutoActivateKnowledge controls the visibility of knowledge promoted
	// from approved extractions: false (default) promotes to SHADOW, true
	// promotes straight to ACTIVE.
	AutoActivateKnowledge bool

	// GatePolicy is the per-connection confidence gate policy.
	// nil means no policy is configured and the gate passes answers through.
	GatePolicy *Policy

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateExtractionToken checks a widget-supplied capability token against
// the connection's issued token. Returns ErrExtractionDisabled,
// ErrInvalidToken or ErrTokenExpired; nil means the token is usable.
func (c *Connection) ValidateExtractionToken(token string, now time.Time) error {
	if !c.ExtractionEnabled {
		return ErrExtractionDisabled
	}
	if c.ExtractionToken == nil || token == "" || *c.ExtractionToken != token {
		return ErrInvalidToken
	}
	if c.ExtractionTokenExpires != nil && now.After(*c.ExtractionTokenExpires) {
		return ErrTokenExpired
	}
	return nil
}
