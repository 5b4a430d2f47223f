package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PKCE code challenge methods per RFC 7636.
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// Code verifier length bounds per RFC 7636 section 4.1.
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

// ValidateCodeVerifier checks the RFC 7636 shape of a code verifier:
// 43-128 characters from the unreserved set [A-Za-z0-9-._~].
func ValidateCodeVerifier(verifier string) error {
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code verifier must be %d-%d characters, got %d",
			MinCodeVerifierLength, MaxCodeVerifierLength, len(verifier))
	}
	for _, c := range verifier {
		if !isUnreservedChar(c) {
			return fmt.Errorf("code verifier contains invalid character %q", c)
		}
	}
	return nil
}

func isUnreservedChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// ComputeChallenge derives the code challenge for a verifier under the
// given method. For S256 this is base64url(SHA256(verifier)) without
// padding; for plain it is the verifier itself.
func ComputeChallenge(verifier, method string) (string, error) {
	switch method {
	case PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case PKCEMethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("unsupported code challenge method: %s", method)
	}
}

// VerifyChallenge checks a code verifier against a stored challenge using
// constant-time comparison. Returns nil when the verifier matches.
func VerifyChallenge(verifier, challenge, method string) error {
	if err := ValidateCodeVerifier(verifier); err != nil {
		return err
	}

	computed, err := ComputeChallenge(verifier, method)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code verifier does not match challenge")
	}
	return nil
}
