package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeForHash collapses whitespace and lowercases s so that cosmetic
// differences between two ticket texts do not change their fingerprint.
func NormalizeForHash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ContentHash is the hex SHA-256 of the normalised content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(content)))
	return hex.EncodeToString(sum[:])
}
