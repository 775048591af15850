package recorder

import (
	"crypto/sha256"
	"encoding/hex"
)

// RedactSecret replaces a credential with its SHA-256 hash so records can
// still be grouped by caller without storing the credential.
//
// Returns an empty string if the value is empty.
func RedactSecret(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(hash[:])
}

// TruncateString truncates a string to the specified maximum length.
// If the string is longer than maxLen, it is truncated and "..." is appended.
// A non-positive maxLen disables truncation.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
