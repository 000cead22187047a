package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/firebase/genkit/go/ai"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/veritail/veritail/internal/log"
)

// DB defines the minimal database interface needed by the store.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages knowledge items with vector search support.
// It handles embedding generation and similarity search on
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	embedder ai.Embedder
	logger   *log.Logger
}

// NewStore creates a knowledge store.
//
// Parameters:
//   - db: database handle (pool in production, tx in promotion paths)
//   - embedder: AI embedder for generating content vectors
//   - logger: logger for debugging (nil = no-op)
func NewStore(db DB, embedder ai.Embedder, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// IngestParams describes a unit of content entering the store.
type IngestParams struct {
	ConnectionID string
	SourceKind   string
	SourceValue  string
	RawText      string

	// Visibility defaults to SHADOW when empty.
	Visibility string

	// Confidence defaults to DefaultConfidence when nil.
	Confidence *float64

	Metadata map[string]any
}

// Ingest creates a READY knowledge item: cleans the raw text, computes
// its fingerprint, generates an embedding, and inserts the row.
//
// The db parameter lets promotion paths run the insert inside their
// transaction; pass nil to use the store's own handle.
//
// Returns ErrEmptyContent when the cleaned text is empty.
func (s *Store) Ingest(ctx context.Context, db DB, p IngestParams) (*Item, error) {
	if db == nil {
		db = s.db
	}

	cleaned := cleanText(p.RawText)
	if cleaned == "" {
		return nil, ErrEmptyContent
	}

	visibility := p.Visibility
	if visibility == "" {
		visibility = VisibilityShadow
	}
	confidence := DefaultConfidence
	if p.Confidence != nil {
		confidence = *p.Confidence
	}

	vec, err := s.embedText(ctx, cleaned)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	now := time.Now().UTC()
	item := &Item{
		ID:              uuid.NewString(),
		ConnectionID:    p.ConnectionID,
		SourceKind:      p.SourceKind,
		SourceValue:     p.SourceValue,
		RawText:         p.RawText,
		CleanedText:     cleaned,
		Status:          StatusReady,
		Visibility:      visibility,
		ConfidenceScore: confidence,
		ContentHash:     Fingerprint(cleaned),
		Metadata:        p.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query, args, err := squirrel.Insert("knowledge_items").
		Columns("id", "connection_id", "source_kind", "source_value",
			"raw_text", "cleaned_text", "status", "visibility",
			"confidence_score", "content_hash", "embedding", "metadata",
			"created_at", "updated_at").
		Values(item.ID, item.ConnectionID, item.SourceKind, item.SourceValue,
			item.RawText, item.CleanedText, item.Status, item.Visibility,
			item.ConfidenceScore, item.ContentHash, pgvector.NewVector(vec), metadata,
			now, now).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}
	if _, err := db.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting knowledge item: %w", err)
	}

	s.logger.Debug("knowledge item ingested",
		"item_id", item.ID,
		"connection_id", item.ConnectionID,
		"visibility", item.Visibility,
		"content_length", len(cleaned))
	return item, nil
}

var itemColumns = []string{
	"id", "connection_id", "source_kind", "source_value", "raw_text",
	"cleaned_text", "status", "visibility", "confidence_score",
	"content_hash", "last_checked_at", "metadata", "created_at", "updated_at",
}

// Get retrieves a knowledge item by ID.
//
// Returns ErrNotFound when no item has the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	query, args, err := squirrel.Select(itemColumns...).
		From("knowledge_items").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var row itemRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("knowledge item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning knowledge item: %w", err)
	}
	return row.toItem()
}

// FindBySource retrieves the knowledge item for a connection's source
// locator. Drift checks use this to locate the stored fingerprint.
//
// Returns ErrNotFound when the connection has no item for the locator.
func (s *Store) FindBySource(ctx context.Context, connectionID, sourceValue string) (*Item, error) {
	query, args, err := squirrel.Select(itemColumns...).
		From("knowledge_items").
		Where(squirrel.Eq{"connection_id": connectionID, "source_value": sourceValue}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var row itemRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("source %q for connection %s: %w", sourceValue, connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning knowledge item: %w", err)
	}
	return row.toItem()
}

// ListByConnection returns all knowledge items owned by a connection,
// newest first.
func (s *Store) ListByConnection(ctx context.Context, connectionID string) ([]*Item, error) {
	query, args, err := squirrel.Select(itemColumns...).
		From("knowledge_items").
		Where(squirrel.Eq{"connection_id": connectionID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var rows []itemRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning knowledge items: %w", err)
	}

	items := make([]*Item, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// SetVisibility moves an item between SHADOW and ACTIVE.
func (s *Store) SetVisibility(ctx context.Context, id, visibility string) error {
	query, args, err := squirrel.Update("knowledge_items").
		Set("visibility", visibility).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating visibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("knowledge item %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("knowledge visibility updated", "item_id", id, "visibility", visibility)
	return nil
}

// MarkStale sets an item's status to STALE and records the check time.
// Visibility and confidence are left untouched.
func (s *Store) MarkStale(ctx context.Context, id string, checkedAt time.Time) error {
	query, args, err := squirrel.Update("knowledge_items").
		Set("status", StatusStale).
		Set("last_checked_at", checkedAt.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("marking knowledge item stale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("knowledge item %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("knowledge item marked stale", "item_id", id)
	return nil
}

// AdjustConfidence applies a delta to an item's confidence score,
// clamped to [0.0, 1.0] in the database so concurrent adjustments
// cannot escape the range. Returns the resulting score.
func (s *Store) AdjustConfidence(ctx context.Context, id string, delta float64) (float64, error) {
	const query = `
		UPDATE knowledge_items
		SET confidence_score = GREATEST(0.0, LEAST(1.0, confidence_score + $2)),
		    updated_at = now()
		WHERE id = $1
		RETURNING confidence_score`

	var score float64
	if err := s.db.QueryRow(ctx, query, id, delta).Scan(&score); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("knowledge item %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("adjusting confidence: %w", err)
	}

	s.logger.Debug("knowledge confidence adjusted", "item_id", id, "delta", delta, "score", score)
	return score, nil
}

// Purge hard-deletes a knowledge item. Administrative use only.
func (s *Store) Purge(ctx context.Context, id string) error {
	query, args, err := squirrel.Delete("knowledge_items").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("purging knowledge item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("knowledge item %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("knowledge item purged", "item_id", id)
	return nil
}

// embedText generates an embedding vector for the given text.
func (s *Store) embedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Embedding, nil
}

// cleanText normalizes line endings and trims surrounding whitespace.
// Interior structure is preserved; fingerprinting applies its own
// whitespace normalization on top.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}

// itemRow is the scan target for the knowledge_items table.
type itemRow struct {
	ID              string     `db:"id"`
	ConnectionID    string     `db:"connection_id"`
	SourceKind      string     `db:"source_kind"`
	SourceValue     string     `db:"source_value"`
	RawText         string     `db:"raw_text"`
	CleanedText     string     `db:"cleaned_text"`
	Status          string     `db:"status"`
	Visibility      string     `db:"visibility"`
	ConfidenceScore float64    `db:"confidence_score"`
	ContentHash     string     `db:"content_hash"`
	LastCheckedAt   *time.Time `db:"last_checked_at"`
	Metadata        []byte     `db:"metadata"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r *itemRow) toItem() (*Item, error) {
	item := &Item{
		ID:              r.ID,
		ConnectionID:    r.ConnectionID,
		SourceKind:      r.SourceKind,
		SourceValue:     r.SourceValue,
		RawText:         r.RawText,
		CleanedText:     r.CleanedText,
		Status:          r.Status,
		Visibility:      r.Visibility,
		ConfidenceScore: r.ConfidenceScore,
		ContentHash:     r.ContentHash,
		LastCheckedAt:   r.LastCheckedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return item, nil
}
