package connection

import (
	"errors"
	"testing"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Policy
		wantErr bool
	}{
		{
			name:  "valid policy",
			input: `{"minAnswerConfidence": 0.7, "minSourceCount": 2, "lowConfidenceAction": "REFUSE"}`,
			want:  Policy{MinAnswerConfidence: 0.7, MinSourceCount: 2, LowConfidenceAction: ActionRefuse},
		},
		{
			name:  "action omitted",
			input: `{"minAnswerConfidence": 0.5, "minSourceCount": 1}`,
			want:  Policy{MinAnswerConfidence: 0.5, MinSourceCount: 1},
		},
		{
			name:    "unknown field rejected",
			input:   `{"minAnswerConfidence": 0.7, "minSources": 2}`,
			wantErr: true,
		},
		{
			name:    "confidence above one",
			input:   `{"minAnswerConfidence": 1.5, "minSourceCount": 2}`,
			wantErr: true,
		},
		{
			name:    "negative source count",
			input:   `{"minAnswerConfidence": 0.7, "minSourceCount": -1}`,
			wantErr: true,
		},
		{
			name:    "unknown action",
			input:   `{"minAnswerConfidence": 0.7, "minSourceCount": 2, "lowConfidenceAction": "PANIC"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `minAnswerConfidence=0.7`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePolicy([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParsePolicy() error = nil, want error")
				}
				if !errors.Is(err, ErrInvalidPolicy) {
					t.Fatalf("ParsePolicy() error = %v, want ErrInvalidPolicy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePolicy() error = %v", err)
			}
			if *got != tt.want {
				t.Fatalf("ParsePolicy() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestPolicyValidate_Actions(t *testing.T) {
	for _, action := range []string{ActionRefuse, ActionClarify, ActionEscalate, ActionSoftAnswer, ""} {
		p := Policy{MinAnswerConfidence: 0.6, MinSourceCount: 1, LowConfidenceAction: action}
		if err := p.Validate(); err != nil {
			t.Errorf("Validate() with action %q = %v, want nil", action, err)
		}
	}
}
