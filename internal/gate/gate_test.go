package gate

import (
	"math"
	"strings"
	"testing"

	"github.com/veritail/veritail/internal/connection"
)

const draft = "Our return window is 30 days from delivery."

func TestEvaluate_NilPolicyPassesThrough(t *testing.T) {
	result := Evaluate(nil, []float64{0.1}, draft)
	if result.Gated {
		t.Error("Gated = true, want pass-through with nil policy")
	}
	if result.FinalText != draft {
		t.Errorf("FinalText = %q, want draft unchanged", result.FinalText)
	}
}

func TestEvaluate_Refuse(t *testing.T) {
	policy := &connection.Policy{
		MinAnswerConfidence: 0.7,
		MinSourceCount:      1,
		LowConfidenceAction: connection.ActionRefuse,
	}

	result := Evaluate(policy, []float64{0.5}, draft)
	if !result.Gated {
		t.Fatal("Gated = false, want true")
	}
	if result.Reason != "Confidence 50% below 70% threshold" {
		t.Errorf("Reason = %q", result.Reason)
	}
	if result.FinalText != refuseText {
		t.Errorf("FinalText = %q, want refusal copy", result.FinalText)
	}
	if result.OriginalAnswer != draft {
		t.Errorf("OriginalAnswer = %q, want preserved draft", result.OriginalAnswer)
	}
	if strings.Contains(result.FinalText, "30 days") {
		t.Error("refusal text leaks the original answer")
	}
}

func TestEvaluate_PassesAboveThresholds(t *testing.T) {
	policy := &connection.Policy{
		MinAnswerConfidence: 0.7,
		MinSourceCount:      1,
		LowConfidenceAction: connection.ActionRefuse,
	}

	result := Evaluate(policy, []float64{0.9, 0.95}, draft)
	if result.Gated {
		t.Fatalf("Gated = true (reason %q), want false", result.Reason)
	}
	if result.FinalText != draft {
		t.Errorf("FinalText = %q, want draft unchanged", result.FinalText)
	}
	if math.Abs(result.AggregateConfidence-0.925) > 1e-9 {
		t.Errorf("AggregateConfidence = %v, want 0.925", result.AggregateConfidence)
	}
	if result.OriginalAnswer != "" {
		t.Errorf("OriginalAnswer = %q, want empty when not gated", result.OriginalAnswer)
	}
}

func TestEvaluate_EmptyCitationsAggregateToOne(t *testing.T) {
	policy := &connection.Policy{
		MinAnswerConfidence: 0.9,
		MinSourceCount:      0,
		LowConfidenceAction: connection.ActionRefuse,
	}

	result := Evaluate(policy, nil, draft)
	if result.AggregateConfidence != 1.0 {
		t.Errorf("AggregateConfidence = %v, want 1.0", result.AggregateConfidence)
	}
	if result.Gated {
		t.Errorf("Gated = true (reason %q), want no-citation answers ungated on confidence", result.Reason)
	}
}

func TestEvaluate_SourceCountOnly(t *testing.T) {
	policy := &connection.Policy{
		MinAnswerConfidence: 0.5,
		MinSourceCount:      2,
		LowConfidenceAction: connection.ActionEscalate,
	}

	result := Evaluate(policy, []float64{0.9}, draft)
	if !result.Gated {
		t.Fatal("Gated = false, want true on source count")
	}
	if result.Reason != "Only 1 source(s), need 2" {
		t.Errorf("Reason = %q", result.Reason)
	}
	if result.FinalText != escalateText {
		t.Errorf("FinalText = %q, want escalation copy", result.FinalText)
	}
}

func TestEvaluate_ConfidenceReasonTakesPriority(t *testing.T) {
	policy := &connection.Policy{
		MinAnswerConfidence: 0.7,
		MinSourceCount:      3,
		LowConfidenceAction: connection.ActionClarify,
	}

	// Both dimensions fail; the reason names confidence.
	result := Evaluate(policy, []float64{0.2}, draft)
	if !result.Gated {
		t.Fatal("Gated = false, want true")
	}
	if !strings.HasPrefix(result.Reason, "Confidence") {
		t.Errorf("Reason = %q, want confidence-first", result.Reason)
	}
	if result.FinalText != clarifyText {
		t.Errorf("FinalText = %q, want clarify copy", result.FinalText)
	}
}

func TestEvaluate_SoftAnswerDefault(t *testing.T) {
	for _, action := range []string{connection.ActionSoftAnswer, ""} {
		policy := &connection.Policy{
			MinAnswerConfidence: 0.7,
			MinSourceCount:      1,
			LowConfidenceAction: action,
		}

		result := Evaluate(policy, []float64{0.3}, draft)
		if !result.Gated {
			t.Fatalf("action %q: Gated = false, want true", action)
		}
		want := softPrefix + draft
		if result.FinalText != want {
			t.Errorf("action %q: FinalText = %q, want warning prefix plus draft", action, result.FinalText)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	policy := &connection.Policy{
		MinAnswerConfidence: 0.7,
		MinSourceCount:      2,
		LowConfidenceAction: connection.ActionRefuse,
	}
	confidences := []float64{0.61, 0.72, 0.69}

	first := Evaluate(policy, confidences, draft)
	for range 50 {
		got := Evaluate(policy, confidences, draft)
		if got != first {
			t.Fatalf("Evaluate() not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestFailClosed(t *testing.T) {
	result := FailClosed(draft)
	if !result.Gated {
		t.Error("Gated = false, want fail-closed gating")
	}
	if result.FinalText != refuseText {
		t.Errorf("FinalText = %q, want refusal copy", result.FinalText)
	}
	if result.OriginalAnswer != draft {
		t.Errorf("OriginalAnswer = %q, want preserved draft", result.OriginalAnswer)
	}
	if strings.Contains(result.FinalText, draft) {
		t.Error("fail-closed text leaks the draft")
	}
}
