package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds vector search queries so a slow index scan cannot
// stall an answer indefinitely.
const searchTimeout = 10 * time.Second

// staleDownWeight is the retrieval-time confidence multiplier applied to
// STALE items. Staleness does not change the stored score or visibility;
// the answering layer just sees the item as less trustworthy until the
// source is re-ingested.
const staleDownWeight = 0.8

// FindActive performs semantic retrieval over a connection's citable
// knowledge. Only ACTIVE items can match: SHADOW filtering happens in the
// query itself, so shadow content never reaches a caller.
//
// Results are ordered by cosine distance to the query embedding. STALE
// items remain retrievable with their confidence down-weighted.
func (s *Store) FindActive(ctx context.Context, connectionID, queryText string, topK int) ([]Citation, error) {
	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec, err := s.embedText(queryCtx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	query, args, err := squirrel.Select("id", "cleaned_text", "confidence_score", "status").
		From("knowledge_items").
		Where(squirrel.Eq{
			"connection_id": connectionID,
			"visibility":    VisibilityActive,
			"status":        []string{StatusReady, StatusStale},
		}).
		OrderByClause("embedding <=> ?", pgvector.NewVector(vec)).
		Limit(uint64(topK)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search query: %w", err)
	}

	var rows []struct {
		ID              string  `db:"id"`
		CleanedText     string  `db:"cleaned_text"`
		ConfidenceScore float64 `db:"confidence_score"`
		Status          string  `db:"status"`
	}
	if err := pgxscan.Select(queryCtx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	citations := make([]Citation, 0, len(rows))
	for _, row := range rows {
		confidence := row.ConfidenceScore
		if row.Status == StatusStale {
			confidence *= staleDownWeight
		}
		citations = append(citations, Citation{
			ID:              row.ID,
			Content:         row.CleanedText,
			ConfidenceScore: confidence,
		})
	}

	s.logger.Debug("knowledge retrieved",
		"connection_id", connectionID, "top_k", topK, "results", len(citations))
	return citations, nil
}
