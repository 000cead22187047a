package connection

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Low-confidence actions a gate policy can select.
const (
	ActionRefuse     = "REFUSE"
	ActionClarify    = "CLARIFY"
	ActionEscalate   = "ESCALATE"
	ActionSoftAnswer = "SOFT_ANSWER"
)

// Policy is the per-connection confidence gating configuration.
// Owned and mutated only by connection administrators; the gate reads it
// but never writes it.
type Policy struct {
	// MinAnswerConfidence is the aggregate citation confidence threshold.
	MinAnswerConfidence float64 `json:"minAnswerConfidence"`

	// MinSourceCount is the minimum number of cited sources.
	MinSourceCount int `json:"minSourceCount"`

	// LowConfidenceAction selects the rewrite applied to gated answers.
	LowConfidenceAction string `json:"lowConfidenceAction"`
}

// ParsePolicy decodes a policy from JSON with strict field checking.
// Unknown fields are rejected rather than silently ignored, so typos in
// admin payloads surface as errors instead of policies that never fire.
func ParsePolicy(data []byte) (*Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks policy field ranges and enum values.
func (p *Policy) Validate() error {
	if p.MinAnswerConfidence < 0.0 || p.MinAnswerConfidence > 1.0 {
		return fmt.Errorf("%w: minAnswerConfidence must be in [0.0, 1.0], got %v",
			ErrInvalidPolicy, p.MinAnswerConfidence)
	}
	if p.MinSourceCount < 0 {
		return fmt.Errorf("%w: minSourceCount must not be negative, got %d",
			ErrInvalidPolicy, p.MinSourceCount)
	}
	switch p.LowConfidenceAction {
	case ActionRefuse, ActionClarify, ActionEscalate, ActionSoftAnswer:
		return nil
	case "":
		// Empty action defaults to SOFT_ANSWER at gate time.
		return nil
	default:
		return fmt.Errorf("%w: unknown lowConfidenceAction %q",
			ErrInvalidPolicy, p.LowConfidenceAction)
	}
}
