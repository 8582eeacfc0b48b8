// Package checksum fingerprints note content for change detection and
// optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum for text content.
func String(s string) string {
	return Sum([]byte(s))
}

// ETag quotes sum for use in an HTTP ETag header.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// Matches reports whether an If-Match value names sum. An empty value or
// "*" matches anything; quotes and a weak prefix are ignored.
func Matches(ifMatch, sum string) bool {
	ifMatch = strings.TrimSpace(ifMatch)
	if ifMatch == "" || ifMatch == "*" {
		return true
	}
	ifMatch = strings.TrimPrefix(ifMatch, "W/")
	return strings.Trim(ifMatch, `"`) == sum
}
