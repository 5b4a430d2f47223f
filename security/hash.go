package security

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Digest returns the SHA-256 digest of s, base64url-encoded without padding.
// Authorization codes, access-token identifiers, and refresh tokens are
// stored under their digest so the stored keyspace never contains a usable
// credential.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// hashForLogging creates a truncated SHA-256 hash of sensitive data for
// audit logs. Long enough to correlate, too short to reverse.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
