// Package constraint fingerprints the writing constraints attached to a
// passage so analyses, completions and usage can be grouped by them.
package constraint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key returns the hex SHA-256 of the trimmed constraint text.
func Key(constraint string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(constraint)))
	return hex.EncodeToString(sum[:])
}
