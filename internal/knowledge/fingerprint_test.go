package knowledge

import (
	"testing"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{
			name: "identical content",
			a:    "Free shipping on orders over $50.",
			b:    "Free shipping on orders over $50.",
			same: true,
		},
		{
			name: "whitespace differences collapse",
			a:    "Free  shipping\non orders\t over $50.",
			b:    " Free shipping on orders over $50. ",
			same: true,
		},
		{
			name: "content change detected",
			a:    "Free shipping on orders over $50.",
			b:    "Free shipping on orders over $75.",
			same: false,
		},
		{
			name: "empty versus non-empty",
			a:    "",
			b:    "anything",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ha, hb := Fingerprint(tt.a), Fingerprint(tt.b)
			if (ha == hb) != tt.same {
				t.Errorf("Fingerprint(%q) == Fingerprint(%q) is %v, want %v", tt.a, tt.b, ha == hb, tt.same)
			}
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	content := "Our support hours are 9am to 5pm, Monday through Friday."
	first := Fingerprint(content)
	for range 10 {
		if got := Fingerprint(content); got != first {
			t.Fatalf("Fingerprint() not deterministic: %q != %q", got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("Fingerprint() length = %d, want 64 hex chars", len(first))
	}
}
