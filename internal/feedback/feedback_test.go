package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// fakeScorer applies clamped deltas to an in-memory score map.
type fakeScorer struct {
	scores map[string]float64
	fail   map[string]error
	calls  []string
}

func (f *fakeScorer) AdjustConfidence(_ context.Context, id string, delta float64) (float64, error) {
	f.calls = append(f.calls, id)
	if err, ok := f.fail[id]; ok {
		return 0, err
	}
	score, ok := f.scores[id]
	if !ok {
		return 0, fmt.Errorf("knowledge item %s: %w", id, knowledge.ErrNotFound)
	}
	score = math.Max(0.0, math.Min(1.0, score+delta))
	f.scores[id] = score
	return score, nil
}

func TestApply_Correct(t *testing.T) {
	scorer := &fakeScorer{scores: map[string]float64{"a": 0.5, "b": 0.95}}
	adjuster := NewAdjuster(scorer, log.NewNop())

	summary, err := adjuster.Apply(context.Background(), RatingCorrect, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if summary.Adjusted != 2 {
		t.Errorf("Adjusted = %d, want 2", summary.Adjusted)
	}
	if got := scorer.scores["a"]; math.Abs(got-0.6) > 1e-9 {
		t.Errorf("score a = %v, want 0.6", got)
	}
	// 0.95 + 0.1 clamps to 1.0, not 1.05.
	if got := scorer.scores["b"]; got != 1.0 {
		t.Errorf("score b = %v, want clamp to 1.0", got)
	}
}

func TestApply_Incorrect(t *testing.T) {
	scorer := &fakeScorer{scores: map[string]float64{"a": 0.5, "b": 0.1}}
	adjuster := NewAdjuster(scorer, log.NewNop())

	summary, err := adjuster.Apply(context.Background(), RatingIncorrect, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if summary.Adjusted != 2 {
		t.Errorf("Adjusted = %d, want 2", summary.Adjusted)
	}
	if got := scorer.scores["a"]; math.Abs(got-0.3) > 1e-9 {
		t.Errorf("score a = %v, want 0.3", got)
	}
	if got := scorer.scores["b"]; got != 0.0 {
		t.Errorf("score b = %v, want clamp to 0.0", got)
	}
}

func TestApply_InvalidRating(t *testing.T) {
	adjuster := NewAdjuster(&fakeScorer{}, log.NewNop())

	_, err := adjuster.Apply(context.Background(), "MEH", []string{"a"})
	if !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("Apply() error = %v, want ErrInvalidRating", err)
	}
}

func TestApply_PartialSuccess(t *testing.T) {
	scorer := &fakeScorer{
		scores: map[string]float64{"a": 0.5, "d": 0.5},
		fail:   map[string]error{"c": errors.New("connection reset")},
	}
	adjuster := NewAdjuster(scorer, log.NewNop())

	// b missing, c failing: both are skipped, a and d still adjust.
	summary, err := adjuster.Apply(context.Background(), RatingCorrect, []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if summary.Adjusted != 2 || summary.Missing != 1 || summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 2 adjusted, 1 missing, 1 failed", summary)
	}
	if len(scorer.calls) != 4 {
		t.Errorf("calls = %v, want all 4 items attempted", scorer.calls)
	}
	if got := scorer.scores["d"]; math.Abs(got-0.6) > 1e-9 {
		t.Errorf("score d = %v, want 0.6 despite earlier failures", got)
	}
}

func TestApply_RepeatedClampHolds(t *testing.T) {
	scorer := &fakeScorer{scores: map[string]float64{"a": 0.5}}
	adjuster := NewAdjuster(scorer, log.NewNop())
	ctx := context.Background()

	for range 20 {
		if _, err := adjuster.Apply(ctx, RatingCorrect, []string{"a"}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if got := scorer.scores["a"]; got != 1.0 {
		t.Errorf("score after repeated CORRECT = %v, want 1.0", got)
	}

	for range 20 {
		if _, err := adjuster.Apply(ctx, RatingIncorrect, []string{"a"}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if got := scorer.scores["a"]; got != 0.0 {
		t.Errorf("score after repeated INCORRECT = %v, want 0.0", got)
	}
}
