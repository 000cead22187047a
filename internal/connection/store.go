package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
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

// Store manages connection records in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *log.Logger
}

// NewStore creates a connection store.
func NewStore(db DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

var connectionColumns = []string{
	"id", "website_name", "website_description", "assistant_name",
	"welcome_message", "logo_url", "status", "widget_seen",
	"extraction_enabled", "allowed_extractors", "extraction_token",
	"extraction_token_expires", "auto_activate_knowledge", "gate_policy",
	"created_at", "updated_at",
}

// Create inserts a new connection in CREATED status.
//
// Parameters:
//   - ctx: context for cancellation
//   - conn: connection to insert; ID must be set by the caller
//
// Returns ErrAlreadyExists when the ID is already taken.
func (s *Store) Create(ctx context.Context, conn *Connection) error {
	extractors, err := json.Marshal(conn.AllowedExtractors)
	if err != nil {
		return fmt.Errorf("marshaling allowed extractors: %w", err)
	}
	var policy []byte
	if conn.GatePolicy != nil {
		policy, err = json.Marshal(conn.GatePolicy)
		if err != nil {
			return fmt.Errorf("marshaling gate policy: %w", err)
		}
	}

	now := time.Now().UTC()
	query, args, err := squirrel.Insert("connections").
		Columns("id", "website_name", "website_description", "assistant_name",
			"welcome_message", "logo_url", "status", "widget_seen",
			"extraction_enabled", "allowed_extractors", "extraction_token",
			"extraction_token_expires", "auto_activate_knowledge", "gate_policy",
			"created_at", "updated_at").
		Values(conn.ID, conn.WebsiteName, conn.WebsiteDescription, conn.AssistantName,
			conn.WelcomeMessage, conn.LogoURL, conn.Status, conn.WidgetSeen,
			conn.ExtractionEnabled, extractors, conn.ExtractionToken,
			conn.ExtractionTokenExpires, conn.AutoActivateKnowledge, policy,
			now, now).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("connection %s: %w", conn.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("inserting connection: %w", err)
	}

	s.logger.Debug("connection created", "connection_id", conn.ID, "status", conn.Status)
	return nil
}

// Get retrieves a connection by ID.
//
// Returns ErrNotFound when no connection has the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Connection, error) {
	query, args, err := squirrel.Select(connectionColumns...).
		From("connections").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var row connectionRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}
	return row.toConnection()
}

// MarkConnected completes the widget handshake: a connection in CREATED
// status transitions to CONNECTED and records that the widget was seen.
// The transition is applied at most once; later handshakes only refresh
// widget_seen.
func (s *Store) MarkConnected(ctx context.Context, id string) (*Connection, error) {
	query, args, err := squirrel.Update("connections").
		Set("widget_seen", true).
		Set("status", squirrel.Expr("CASE WHEN status = ? THEN ? ELSE status END",
			StatusCreated, StatusConnected)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building update query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("marking connection connected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("widget handshake recorded", "connection_id", id)
	return s.Get(ctx, id)
}

// UpdateStatus sets the lifecycle status of a connection.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	query, args, err := squirrel.Update("connections").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("connection status updated", "connection_id", id, "status", status)
	return nil
}

// ApplyMetadata fills display fields from approved metadata extraction.
// Empty values leave the existing column untouched.
func (s *Store) ApplyMetadata(ctx context.Context, db DB, id, websiteName, assistantName string) error {
	builder := squirrel.Update("connections").
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)
	if websiteName != "" {
		builder = builder.Set("website_name", websiteName)
	}
	if assistantName != "" {
		builder = builder.Set("assistant_name", assistantName)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("applying metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// ApplyBranding sets the logo URL from approved branding extraction.
func (s *Store) ApplyBranding(ctx context.Context, db DB, id, logoURL string) error {
	if logoURL == "" {
		return nil
	}
	query, args, err := squirrel.Update("connections").
		Set("logo_url", logoURL).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("applying branding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetPolicy stores the confidence gate policy for a connection.
// A nil policy clears the override so the server defaults apply again.
func (s *Store) SetPolicy(ctx context.Context, id string, policy *Policy) error {
	var data []byte
	if policy != nil {
		if err := policy.Validate(); err != nil {
			return err
		}
		var err error
		data, err = json.Marshal(policy)
		if err != nil {
			return fmt.Errorf("marshaling gate policy: %w", err)
		}
	}

	query, args, err := squirrel.Update("connections").
		Set("gate_policy", data).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("setting gate policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("gate policy updated", "connection_id", id, "cleared", policy == nil)
	return nil
}

// IssueExtractionToken enables extraction for a connection and stores a
// fresh token with its expiry. The connection advances to
// EXTRACTION_REQUESTED.
func (s *Store) IssueExtractionToken(ctx context.Context, id, token string, expires time.Time, extractors []string) error {
	allowed, err := json.Marshal(extractors)
	if err != nil {
		return fmt.Errorf("marshaling allowed extractors: %w", err)
	}

	query, args, err := squirrel.Update("connections").
		Set("extraction_enabled", true).
		Set("extraction_token", token).
		Set("extraction_token_expires", expires.UTC()).
		Set("allowed_extractors", allowed).
		Set("status", StatusExtractionRequested).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("issuing extraction token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("extraction token issued",
		"connection_id", id, "expires", expires.UTC(), "extractors", len(extractors))
	return nil
}

// connectionRow is the scan target for the connections table. JSONB
// columns arrive as raw bytes and are decoded in toConnection.
type connectionRow struct {
	ID                     string     `db:"id"`
	WebsiteName            *string    `db:"website_name"`
	WebsiteDescription     *string    `db:"website_description"`
	AssistantName          string     `db:"assistant_name"`
	WelcomeMessage         string     `db:"welcome_message"`
	LogoURL                *string    `db:"logo_url"`
	Status                 string     `db:"status"`
	WidgetSeen             bool       `db:"widget_seen"`
	ExtractionEnabled      bool       `db:"extraction_enabled"`
	AllowedExtractors      []byte     `db:"allowed_extractors"`
	ExtractionToken        *string    `db:"extraction_token"`
	ExtractionTokenExpires *time.Time `db:"extraction_token_expires"`
	AutoActivateKnowledge  bool       `db:"auto_activate_knowledge"`
	GatePolicy             []byte     `db:"gate_policy"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

func (r *connectionRow) toConnection() (*Connection, error) {
	conn := &Connection{
		ID:                     r.ID,
		WebsiteName:            r.WebsiteName,
		WebsiteDescription:     r.WebsiteDescription,
		AssistantName:          r.AssistantName,
		WelcomeMessage:         r.WelcomeMessage,
		LogoURL:                r.LogoURL,
		Status:                 r.Status,
		WidgetSeen:             r.WidgetSeen,
		ExtractionEnabled:      r.ExtractionEnabled,
		ExtractionToken:        r.ExtractionToken,
		ExtractionTokenExpires: r.ExtractionTokenExpires,
		AutoActivateKnowledge:  r.AutoActivateKnowledge,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
	if len(r.AllowedExtractors) > 0 {
		if err := json.Unmarshal(r.AllowedExtractors, &conn.AllowedExtractors); err != nil {
			return nil, fmt.Errorf("decoding allowed extractors: %w", err)
		}
	}
	if len(r.GatePolicy) > 0 {
		var policy Policy
		if err := json.Unmarshal(r.GatePolicy, &policy); err != nil {
			return nil, fmt.Errorf("decoding gate policy: %w", err)
		}
		conn.GatePolicy = &policy
	}
	return conn, nil
}
