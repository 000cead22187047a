package chat

import (
	"testing"

	"github.com/veritail/veritail/internal/knowledge"
)

func TestCitedSources(t *testing.T) {
	citations := []knowledge.Citation{
		{ID: "a", ConfidenceScore: 0.9},
		{ID: "b", ConfidenceScore: 0.4},
		{ID: "c", ConfidenceScore: 0.7},
	}

	tests := []struct {
		name     string
		citedIDs []string
		wantIDs  []string
	}{
		{
			name:    "empty cites everything",
			wantIDs: []string{"a", "b", "c"},
		},
		{
			name:     "subset preserved in cited order",
			citedIDs: []string{"c", "a"},
			wantIDs:  []string{"c", "a"},
		},
		{
			name:     "unknown ids dropped",
			citedIDs: []string{"b", "zzz"},
			wantIDs:  []string{"b"},
		},
		{
			name:     "all unknown",
			citedIDs: []string{"x", "y"},
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := citedSources(citations, tt.citedIDs)
			if len(refs) != len(tt.wantIDs) {
				t.Fatalf("citedSources() = %d refs, want %d", len(refs), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if refs[i].SourceID != want {
					t.Errorf("refs[%d].SourceID = %q, want %q", i, refs[i].SourceID, want)
				}
			}
		})
	}
}

func TestCitedSources_CarriesConfidence(t *testing.T) {
	citations := []knowledge.Citation{{ID: "a", ConfidenceScore: 0.42}}
	refs := citedSources(citations, nil)
	if len(refs) != 1 || refs[0].ConfidenceScore != 0.42 {
		t.Fatalf("citedSources() = %+v, want confidence 0.42", refs)
	}
}
