package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// Engine runs the review state machine: PENDING moves to APPROVED or
// REJECTED exactly once, and approval promotes the payload in the same
// transaction. If promotion fails, the status change rolls back.
type Engine struct {
	db          DB
	extractions *Store
	connections *connection.Store
	knowledge   *knowledge.Store
	logger      *log.Logger
}

// NewEngine creates the review engine. db must be the pool, not a tx:
// each review opens its own transaction.
func NewEngine(db DB, extractions *Store, connections *connection.Store, ks *knowledge.Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		db:          db,
		extractions: extractions,
		connections: connections,
		knowledge:   ks,
		logger:      logger,
	}
}

// ReviewParams describes one review decision.
type ReviewParams struct {
	ExtractionID string
	Action       string
	ReviewedBy   string
	Notes        string
}

// Review applies a terminal decision to a pending extraction.
//
// The status change is an atomic compare-and-set: two concurrent reviews
// of the same item cannot both succeed; the loser gets ErrAlreadyReviewed.
// On APPROVE, promotion runs inside the same transaction, so a failed
// promotion leaves the item PENDING.
//
// Returns ErrNotFound, ErrAlreadyReviewed or ErrInvalidAction.
func (e *Engine) Review(ctx context.Context, p ReviewParams) (*PendingExtraction, error) {
	var status string
	switch p.Action {
	case ActionApprove:
		status = StatusApproved
	case ActionReject:
		status = StatusRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, p.Action)
	}

	var reviewedBy, notes *string
	if p.ReviewedBy != "" {
		reviewedBy = &p.ReviewedBy
	}
	if p.Notes != "" {
		notes = &p.Notes
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning review transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	swapped, err := e.extractions.markReviewed(ctx, tx, p.ExtractionID, status, reviewedBy, notes, time.Now())
	if err != nil {
		return nil, err
	}
	if !swapped {
		existing, getErr := e.extractions.Get(ctx, p.ExtractionID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("extraction %s is %s: %w", p.ExtractionID, existing.Status, ErrAlreadyReviewed)
	}

	reviewed, err := e.extractions.get(ctx, tx, p.ExtractionID)
	if err != nil {
		return nil, err
	}

	if p.Action == ActionApprove {
		if err := e.promote(ctx, tx, reviewed); err != nil {
			return nil, fmt.Errorf("promoting extraction %s: %w", p.ExtractionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing review: %w", err)
	}

	e.logger.Info("extraction reviewed",
		"extraction_id", p.ExtractionID,
		"extractor_type", reviewed.ExtractorType,
		"status", status)
	return reviewed, nil
}

// promote applies an approved payload. Dispatch is exhaustive over the
// payload variants; navigation and form promotion is an attach point
// until an action catalog exists.
func (e *Engine) promote(ctx context.Context, tx DB, pe *PendingExtraction) error {
	payload, err := ParsePayload(pe.ExtractorType, pe.RawData)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *MetadataPayload:
		return e.connections.ApplyMetadata(ctx, tx, pe.ConnectionID, p.WebsiteName, p.AssistantName)

	case *BrandingPayload:
		return e.connections.ApplyBranding(ctx, tx, pe.ConnectionID, p.Logo)

	case *KnowledgePayload:
		return e.promoteKnowledge(ctx, tx, pe, p)

	case *NavigationPayload, *FormPayload:
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnknownExtractor, payload)
	}
}

func (e *Engine) promoteKnowledge(ctx context.Context, tx DB, pe *PendingExtraction, p *KnowledgePayload) error {
	content := p.Text
	if content == "" {
		content = p.Title
	}
	if content == "" {
		return fmt.Errorf("%w: knowledge payload has no content to ingest", ErrInvalidPayload)
	}

	sourceKind := knowledge.SourceText
	sourceValue := p.Text
	if p.Kind == "url" {
		sourceKind = knowledge.SourceURL
		sourceValue = p.URL
	}

	conn, err := e.connections.Get(ctx, pe.ConnectionID)
	if err != nil {
		return err
	}
	visibility := knowledge.VisibilityShadow
	if conn.AutoActivateKnowledge {
		visibility = knowledge.VisibilityActive
	}

	metadata := map[string]any{"provenance": "reviewer-approved"}
	if p.Title != "" {
		metadata["pageTitle"] = p.Title
	}
	if pe.PageURL != nil {
		metadata["pageUrl"] = *pe.PageURL
	}

	_, err = e.knowledge.Ingest(ctx, tx, knowledge.IngestParams{
		ConnectionID: pe.ConnectionID,
		SourceKind:   sourceKind,
		SourceValue:  sourceValue,
		RawText:      content,
		Visibility:   visibility,
		Metadata:     metadata,
	})
	return err
}
