package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a deterministic, collision-resistant hash of
// content after whitespace normalization. Runs of whitespace collapse to
// a single space and leading/trailing whitespace is dropped, so
// re-fetching unchanged content never reports drift even when formatting
// differs.
func Fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
