package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DriftOutcome is the result of comparing a live source's fingerprint
// against the one stored at ingest time.
type DriftOutcome string

const (
	// DriftSynced means the fingerprints match; nothing was mutated.
	DriftSynced DriftOutcome = "synced"

	// DriftDrifted means the source changed; the item was marked STALE.
	DriftDrifted DriftOutcome = "drifted"

	// DriftNotFound means no knowledge item exists for the source.
	DriftNotFound DriftOutcome = "not-found"
)

// DriftResult reports a drift check on one source.
type DriftResult struct {
	Outcome DriftOutcome
	ItemID  string
}

// CheckDrift compares currentHash, computed by the caller from freshly
// fetched content, against the fingerprint stored for the connection's
// source locator.
//
// Equal hashes yield DriftSynced with no mutation. Differing hashes yield
// DriftDrifted and mark the item STALE, updating lastCheckedAt; visibility
// and confidence are untouched. A missing item yields DriftNotFound.
func (s *Store) CheckDrift(ctx context.Context, connectionID, sourceValue, currentHash string) (DriftResult, error) {
	item, err := s.FindBySource(ctx, connectionID, sourceValue)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DriftResult{Outcome: DriftNotFound}, nil
		}
		return DriftResult{}, fmt.Errorf("looking up source: %w", err)
	}

	if item.ContentHash == currentHash {
		s.logger.Debug("drift check complete",
			"item_id", item.ID, "outcome", DriftSynced)
		return DriftResult{Outcome: DriftSynced, ItemID: item.ID}, nil
	}

	if err := s.MarkStale(ctx, item.ID, time.Now()); err != nil {
		return DriftResult{}, fmt.Errorf("marking drifted item stale: %w", err)
	}

	s.logger.Debug("drift check complete",
		"item_id", item.ID, "outcome", DriftDrifted)
	return DriftResult{Outcome: DriftDrifted, ItemID: item.ID}, nil
}
