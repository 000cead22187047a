package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

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

// Store manages pending extraction records.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *log.Logger
}

// NewStore creates an extraction store.
func NewStore(db DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

var extractionColumns = []string{
	"id", "connection_id", "source", "extractor_type", "raw_data",
	"page_url", "status", "reviewed_by", "reviewed_at", "review_notes",
	"created_at", "updated_at",
}

// Create inserts a pending extraction in PENDING status.
func (s *Store) Create(ctx context.Context, pe *PendingExtraction) error {
	if pe.ID == "" {
		pe.ID = uuid.NewString()
	}
	if pe.Status == "" {
		pe.Status = StatusPending
	}
	now := time.Now().UTC()
	pe.CreatedAt = now
	pe.UpdatedAt = now

	query, args, err := squirrel.Insert("pending_extractions").
		Columns("id", "connection_id", "source", "extractor_type", "raw_data",
			"page_url", "status", "created_at", "updated_at").
		Values(pe.ID, pe.ConnectionID, pe.Source, pe.ExtractorType, []byte(pe.RawData),
			pe.PageURL, pe.Status, now, now).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting pending extraction: %w", err)
	}

	s.logger.Debug("pending extraction created",
		"extraction_id", pe.ID,
		"connection_id", pe.ConnectionID,
		"extractor_type", pe.ExtractorType)
	return nil
}

// Get retrieves a pending extraction by ID.
//
// Returns ErrNotFound when no extraction has the given ID.
func (s *Store) Get(ctx context.Context, id string) (*PendingExtraction, error) {
	return s.get(ctx, s.db, id)
}

func (s *Store) get(ctx context.Context, db DB, id string) (*PendingExtraction, error) {
	query, args, err := squirrel.Select(extractionColumns...).
		From("pending_extractions").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var row extractionRow
	if err := pgxscan.Get(ctx, db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("extraction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning pending extraction: %w", err)
	}
	return row.toPendingExtraction(), nil
}

// ListByConnection returns a connection's extractions, newest first.
// An empty status lists all of them; otherwise only matching ones.
func (s *Store) ListByConnection(ctx context.Context, connectionID, status string) ([]*PendingExtraction, error) {
	builder := squirrel.Select(extractionColumns...).
		From("pending_extractions").
		Where(squirrel.Eq{"connection_id": connectionID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)
	if status != "" {
		builder = builder.Where(squirrel.Eq{"status": status})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var rows []extractionRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning pending extractions: %w", err)
	}

	items := make([]*PendingExtraction, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toPendingExtraction())
	}
	return items, nil
}

// markReviewed performs the atomic check-and-set from PENDING to a
// terminal status. Only a row still in PENDING is updated; when no row
// changes, the caller distinguishes NotFound from Conflict by re-reading.
func (s *Store) markReviewed(ctx context.Context, db DB, id, status string, reviewedBy, notes *string, reviewedAt time.Time) (bool, error) {
	query, args, err := squirrel.Update("pending_extractions").
		Set("status", status).
		Set("reviewed_by", reviewedBy).
		Set("reviewed_at", reviewedAt.UTC()).
		Set("review_notes", notes).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "status": StatusPending}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building update query: %w", err)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating extraction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// extractionRow is the scan target for the pending_extractions table.
type extractionRow struct {
	ID            string     `db:"id"`
	ConnectionID  string     `db:"connection_id"`
	Source        string     `db:"source"`
	ExtractorType string     `db:"extractor_type"`
	RawData       []byte     `db:"raw_data"`
	PageURL       *string    `db:"page_url"`
	Status        string     `db:"status"`
	ReviewedBy    *string    `db:"reviewed_by"`
	ReviewedAt    *time.Time `db:"reviewed_at"`
	ReviewNotes   *string    `db:"review_notes"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func (r *extractionRow) toPendingExtraction() *PendingExtraction {
	return &PendingExtraction{
		ID:            r.ID,
		ConnectionID:  r.ConnectionID,
		Source:        r.Source,
		ExtractorType: r.ExtractorType,
		RawData:       json.RawMessage(r.RawData),
		PageURL:       r.PageURL,
		Status:        r.Status,
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    r.ReviewedAt,
		ReviewNotes:   r.ReviewNotes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
