package chat

import (
	"context"
	"encoding/json"
	"errors"
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

// Store manages chat sessions and their JSONB message history.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *log.Logger
}

// NewStore creates a chat session store.
func NewStore(db DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

var sessionColumns = []string{
	"id", "session_key", "connection_id", "messages", "created_at", "updated_at",
}

// GetOrCreate returns the session for a key, creating an empty one bound
// to the connection when none exists. Concurrent first messages on the
// same key resolve to a single session via the unique key constraint.
func (s *Store) GetOrCreate(ctx context.Context, sessionKey, connectionID string) (*Session, error) {
	sess, err := s.Get(ctx, sessionKey)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	query, args, err := squirrel.Insert("chat_sessions").
		Columns("id", "session_key", "connection_id", "messages", "created_at", "updated_at").
		Values(uuid.NewString(), sessionKey, connectionID, []byte("[]"), now, now).
		Suffix("ON CONFLICT (session_key) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("chat session created",
		"session_key", sessionKey, "connection_id", connectionID)
	return s.Get(ctx, sessionKey)
}

// Get retrieves a session by its key.
//
// Returns ErrSessionNotFound when the key is unknown.
func (s *Store) Get(ctx context.Context, sessionKey string) (*Session, error) {
	query, args, err := squirrel.Select(sessionColumns...).
		From("chat_sessions").
		Where(squirrel.Eq{"session_key": sessionKey}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var row sessionRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return row.toSession()
}

// AppendMessages atomically appends messages to a session's history.
func (s *Store) AppendMessages(ctx context.Context, sessionKey string, messages ...Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	const query = `
		UPDATE chat_sessions
		SET messages = messages || $2::jsonb,
		    updated_at = now()
		WHERE session_key = $1`

	tag, err := s.db.Exec(ctx, query, sessionKey, data)
	if err != nil {
		return fmt.Errorf("appending messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}

	s.logger.Debug("messages appended", "session_key", sessionKey, "count", len(messages))
	return nil
}

// RateMessage records feedback on one assistant message and returns the
// message's citations for confidence adjustment. The session row is
// locked for the read-validate-write, so a message is rated at most
// once even under concurrent submissions.
//
// Returns ErrSessionNotFound, ErrInvalidMessageIndex,
// ErrNotAssistantMessage or ErrAlreadyRated.
func (s *Store) RateMessage(ctx context.Context, sessionKey string, messageIndex int, fb Feedback) ([]SourceRef, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning feedback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	const selectQuery = `
		SELECT messages FROM chat_sessions
		WHERE session_key = $1
		FOR UPDATE`
	if err := tx.QueryRow(ctx, selectQuery, sessionKey).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("loading session messages: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decoding session messages: %w", err)
	}

	if messageIndex < 0 || messageIndex >= len(messages) {
		return nil, fmt.Errorf("index %d of %d messages: %w", messageIndex, len(messages), ErrInvalidMessageIndex)
	}
	target := &messages[messageIndex]
	if target.Role != RoleAssistant {
		return nil, fmt.Errorf("message %d has role %q: %w", messageIndex, target.Role, ErrNotAssistantMessage)
	}
	if target.Feedback != nil {
		return nil, fmt.Errorf("message %d: %w", messageIndex, ErrAlreadyRated)
	}

	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	target.Feedback = &fb

	updated, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshaling messages: %w", err)
	}
	const updateQuery = `
		UPDATE chat_sessions
		SET messages = $2::jsonb,
		    updated_at = now()
		WHERE session_key = $1`
	if _, err := tx.Exec(ctx, updateQuery, sessionKey, updated); err != nil {
		return nil, fmt.Errorf("storing feedback: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing feedback: %w", err)
	}

	s.logger.Debug("message rated",
		"session_key", sessionKey, "message_index", messageIndex, "rating", fb.Rating)
	if target.Metadata == nil {
		return nil, nil
	}
	return target.Metadata.Sources, nil
}

// CountSessions returns session and message totals for a connection.
func (s *Store) CountSessions(ctx context.Context, connectionID string) (sessions int, messages int, err error) {
	const query = `
		SELECT count(*), coalesce(sum(jsonb_array_length(messages)), 0)
		FROM chat_sessions
		WHERE connection_id = $1`
	if err := s.db.QueryRow(ctx, query, connectionID).Scan(&sessions, &messages); err != nil {
		return 0, 0, fmt.Errorf("counting sessions: %w", err)
	}
	return sessions, messages, nil
}

// sessionRow is the scan target for the chat_sessions table.
type sessionRow struct {
	ID           string    `db:"id"`
	SessionKey   string    `db:"session_key"`
	ConnectionID string    `db:"connection_id"`
	Messages     []byte    `db:"messages"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *sessionRow) toSession() (*Session, error) {
	sess := &Session{
		ID:           r.ID,
		SessionKey:   r.SessionKey,
		ConnectionID: r.ConnectionID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Messages) > 0 {
		if err := json.Unmarshal(r.Messages, &sess.Messages); err != nil {
			return nil, fmt.Errorf("decoding session messages: %w", err)
		}
	}
	return sess, nil
}
