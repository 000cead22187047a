package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/log"
)

// Submission is one widget extraction batch. Each populated section fans
// out into its own pending extraction so reviewers can approve facts
// independently.
type Submission struct {
	PageURL       string              `json:"pageUrl,omitempty"`
	SiteName      string              `json:"siteName,omitempty"`
	AssistantName string              `json:"assistantName,omitempty"`
	Branding      *BrandingPayload    `json:"branding,omitempty"`
	Knowledge     []KnowledgePayload  `json:"knowledge,omitempty"`
	Navigation    []NavigationPayload `json:"navigation,omitempty"`
	Forms         []FormPayload       `json:"forms,omitempty"`
}

// Intake accepts untrusted extraction submissions from the widget.
//
// Submissions are not deduplicated across retries: duplicates create
// duplicate pending items and are left for reviewers to discard.
type Intake struct {
	connections *connection.Store
	extractions *Store
	logger      *log.Logger

	// now is swapped in tests to control token expiry.
	now func() time.Time
}

// NewIntake creates the extraction intake service.
func NewIntake(connections *connection.Store, extractions *Store, logger *log.Logger) *Intake {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Intake{
		connections: connections,
		extractions: extractions,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit validates the capability token and fans the submission out into
// pending extraction rows. When the connection was awaiting extraction,
// its status advances to READY.
//
// Returns connection.ErrExtractionDisabled, connection.ErrInvalidToken or
// connection.ErrTokenExpired on authorization failure, ErrEmptySubmission
// when nothing extractable was sent.
func (in *Intake) Submit(ctx context.Context, connectionID, token string, sub Submission) ([]*PendingExtraction, error) {
	conn, err := in.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if err := conn.ValidateExtractionToken(token, in.now()); err != nil {
		return nil, err
	}

	pending, err := fanOut(connectionID, sub)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrEmptySubmission
	}

	for _, pe := range pending {
		if err := in.extractions.Create(ctx, pe); err != nil {
			return nil, fmt.Errorf("storing pending extraction: %w", err)
		}
	}

	if conn.Status == connection.StatusExtractionRequested {
		if err := in.connections.UpdateStatus(ctx, connectionID, connection.StatusReady); err != nil {
			return nil, fmt.Errorf("advancing connection status: %w", err)
		}
	}

	in.logger.Info("extraction submission accepted",
		"connection_id", connectionID,
		"pending_items", len(pending))
	return pending, nil
}

// fanOut splits a submission into independent review units.
func fanOut(connectionID string, sub Submission) ([]*PendingExtraction, error) {
	var pageURL *string
	if sub.PageURL != "" {
		pageURL = &sub.PageURL
	}

	var pending []*PendingExtraction
	add := func(payload Payload) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling %s payload: %w", payload.ExtractorType(), err)
		}
		pending = append(pending, &PendingExtraction{
			ConnectionID:  connectionID,
			Source:        SourceWidget,
			ExtractorType: payload.ExtractorType(),
			RawData:       raw,
			PageURL:       pageURL,
		})
		return nil
	}

	if sub.SiteName != "" || sub.AssistantName != "" {
		err := add(&MetadataPayload{WebsiteName: sub.SiteName, AssistantName: sub.AssistantName})
		if err != nil {
			return nil, err
		}
	}
	if sub.Branding != nil {
		if err := add(sub.Branding); err != nil {
			return nil, err
		}
	}
	for i := range sub.Knowledge {
		if err := sub.Knowledge[i].validate(); err != nil {
			return nil, err
		}
		if err := add(&sub.Knowledge[i]); err != nil {
			return nil, err
		}
	}
	for i := range sub.Navigation {
		if err := add(&sub.Navigation[i]); err != nil {
			return nil, err
		}
	}
	for i := range sub.Forms {
		if err := add(&sub.Forms[i]); err != nil {
			return nil, err
		}
	}
	return pending, nil
}
