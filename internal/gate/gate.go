// Package gate implements the confidence gate: the pure decision
// procedure that inspects a generated answer's citation confidence and
// citation count against a connection's policy and rewrites the visible
// text when the answer is not safe to show verbatim.
package gate

import (
	"fmt"

	"github.com/veritail/veritail/internal/connection"
)

// Fixed replacement copy per low-confidence action. The end user sees
// only these strings, never internal error detail.
const (
	refuseText   = "I'm not fully confident in that answer yet. Let me double-check or connect you with support."
	clarifyText  = "I need a bit more detail to answer accurately. Could you rephrase or provide more context?"
	escalateText = "I'm not confident enough to answer that reliably. Would you like me to connect you to a human agent?"
	softPrefix   = "⚠️ This may not be fully accurate, but based on available information: "
)

// Result is the gate's verdict on one draft answer.
type Result struct {
	// FinalText is the text to show the visitor. Equal to the draft when
	// the answer passed; replacement copy otherwise.
	FinalText string

	Gated  bool
	Reason string

	// OriginalAnswer preserves the draft when gated, for audit and
	// feedback. Empty when the answer passed.
	OriginalAnswer string

	// AggregateConfidence is the mean citation confidence, 1.0 for an
	// answer with no citations.
	AggregateConfidence float64

	SourceCount int
}

// Evaluate applies a connection's confidence policy to a draft answer.
//
// The aggregate confidence is the arithmetic mean of the cited sources'
// scores; an empty citation list aggregates to 1.0, so citation-free
// answers are gated only by minSourceCount. When both dimensions fail,
// the reason names the confidence shortfall.
//
// A nil policy means no gating is configured: the draft passes through
// unchanged. Evaluate is deterministic and never errs; callers that fail
// to load a policy should use FailClosed instead of guessing.
func Evaluate(policy *connection.Policy, confidences []float64, draft string) Result {
	aggregate := 1.0
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		aggregate = sum / float64(len(confidences))
	}

	result := Result{
		FinalText:           draft,
		AggregateConfidence: aggregate,
		SourceCount:         len(confidences),
	}
	if policy == nil {
		return result
	}

	belowConfidence := aggregate < policy.MinAnswerConfidence
	belowSources := len(confidences) < policy.MinSourceCount
	if !belowConfidence && !belowSources {
		return result
	}

	result.Gated = true
	result.OriginalAnswer = draft
	if belowConfidence {
		result.Reason = fmt.Sprintf("Confidence %.0f%% below %.0f%% threshold",
			aggregate*100, policy.MinAnswerConfidence*100)
	} else {
		result.Reason = fmt.Sprintf("Only %d source(s), need %d",
			len(confidences), policy.MinSourceCount)
	}

	switch policy.LowConfidenceAction {
	case connection.ActionRefuse:
		result.FinalText = refuseText
	case connection.ActionClarify:
		result.FinalText = clarifyText
	case connection.ActionEscalate:
		result.FinalText = escalateText
	default:
		result.FinalText = softPrefix + draft
	}
	return result
}

// FailClosed is the conservative verdict when gate evaluation itself
// failed (for example, the policy could not be loaded). The draft is
// withheld behind the refusal copy rather than shipped unchecked.
func FailClosed(draft string) Result {
	return Result{
		FinalText:      refuseText,
		Gated:          true,
		Reason:         "gate evaluation error",
		OriginalAnswer: draft,
	}
}
