// Package feedback nudges knowledge confidence from per-answer user
// ratings: every item cited in a rated answer gets its score adjusted,
// rewards smaller than penalties so trust is slow to earn and quick to
// lose.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// Ratings a visitor can give an answer.
const (
	RatingCorrect   = "CORRECT"
	RatingIncorrect = "INCORRECT"
)

// Confidence deltas per rating. Asymmetric: a wrong answer costs twice
// what a correct one earns.
const (
	correctDelta   = 0.1
	incorrectDelta = -0.2
)

// ErrInvalidRating indicates a rating outside {CORRECT, INCORRECT}.
var ErrInvalidRating = errors.New("invalid feedback rating")

// Scorer is the slice of the knowledge store the adjuster needs.
type Scorer interface {
	// AdjustConfidence applies a clamped delta and returns the new score.
	AdjustConfidence(ctx context.Context, id string, delta float64) (float64, error)
}

// Summary reports a feedback application over one answer's citations.
type Summary struct {
	// Adjusted counts items whose confidence changed.
	Adjusted int

	// Missing counts cited items that no longer exist.
	Missing int

	// Failed counts items whose adjustment errored.
	Failed int
}

// Adjuster applies answer ratings to cited knowledge items.
type Adjuster struct {
	scorer Scorer
	logger *log.Logger
}

// NewAdjuster creates a feedback adjuster.
func NewAdjuster(scorer Scorer, logger *log.Logger) *Adjuster {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Adjuster{scorer: scorer, logger: logger}
}

// Apply adjusts the confidence of every cited knowledge item per the
// rating. A failure on one item does not abort the rest: missing and
// failed items are logged and counted, and the remaining citations are
// still processed.
//
// Returns ErrInvalidRating for an unknown rating.
func (a *Adjuster) Apply(ctx context.Context, rating string, sourceIDs []string) (Summary, error) {
	var delta float64
	switch rating {
	case RatingCorrect:
		delta = correctDelta
	case RatingIncorrect:
		delta = incorrectDelta
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrInvalidRating, rating)
	}

	var summary Summary
	for _, id := range sourceIDs {
		score, err := a.scorer.AdjustConfidence(ctx, id, delta)
		switch {
		case err == nil:
			summary.Adjusted++
			a.logger.Debug("feedback applied",
				"item_id", id, "rating", rating, "score", score)
		case errors.Is(err, knowledge.ErrNotFound):
			summary.Missing++
			a.logger.Debug("feedback skipped missing item", "item_id", id)
		default:
			summary.Failed++
			a.logger.Warn("feedback adjustment failed",
				"item_id", id, "error", err)
		}
	}
	return summary, nil
}
