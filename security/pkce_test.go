package security

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestValidateCodeVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		wantErr  bool
	}{
		{
			name:     "minimum length",
			verifier: strings.Repeat("a", 43),
			wantErr:  false,
		},
		{
			name:     "maximum length",
			verifier: strings.Repeat("a", 128),
			wantErr:  false,
		},
		{
			name:     "too short",
			verifier: strings.Repeat("a", 42),
			wantErr:  true,
		},
		{
			name:     "too long",
			verifier: strings.Repeat("a", 129),
			wantErr:  true,
		},
		{
			name:     "all unreserved characters",
			verifier: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnop0123456789-._~",
			wantErr:  false,
		},
		{
			name:     "invalid character",
			verifier: strings.Repeat("a", 42) + "!",
			wantErr:  true,
		},
		{
			name:     "space",
			verifier: strings.Repeat("a", 42) + " ",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCodeVerifier(tt.verifier)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCodeVerifier() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComputeChallenge(t *testing.T) {
	verifier := strings.Repeat("v", 50)

	t.Run("S256", func(t *testing.T) {
		got, err := ComputeChallenge(verifier, PKCEMethodS256)
		if err != nil {
			t.Fatalf("ComputeChallenge() error = %v", err)
		}
		if got != s256Challenge(verifier) {
			t.Errorf("ComputeChallenge() = %q, want %q", got, s256Challenge(verifier))
		}
	})

	t.Run("plain", func(t *testing.T) {
		got, err := ComputeChallenge(verifier, PKCEMethodPlain)
		if err != nil {
			t.Fatalf("ComputeChallenge() error = %v", err)
		}
		if got != verifier {
			t.Errorf("ComputeChallenge() = %q, want verifier", got)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		if _, err := ComputeChallenge(verifier, "S512"); err == nil {
			t.Error("ComputeChallenge() expected error for unknown method")
		}
	})
}

func TestVerifyChallenge(t *testing.T) {
	verifier := strings.Repeat("v", 50)
	otherVerifier := strings.Repeat("w", 50)

	tests := []struct {
		name      string
		verifier  string
		challenge string
		method    string
		wantErr   bool
	}{
		{
			name:      "S256 match",
			verifier:  verifier,
			challenge: s256Challenge(verifier),
			method:    PKCEMethodS256,
			wantErr:   false,
		},
		{
			name:      "S256 mismatch",
			verifier:  otherVerifier,
			challenge: s256Challenge(verifier),
			method:    PKCEMethodS256,
			wantErr:   true,
		},
		{
			name:      "plain match",
			verifier:  verifier,
			challenge: verifier,
			method:    PKCEMethodPlain,
			wantErr:   false,
		},
		{
			name:      "plain mismatch",
			verifier:  otherVerifier,
			challenge: verifier,
			method:    PKCEMethodPlain,
			wantErr:   true,
		},
		{
			name:      "verifier too short",
			verifier:  "short",
			challenge: s256Challenge("short"),
			method:    PKCEMethodS256,
			wantErr:   true,
		},
		{
			name:      "unknown method",
			verifier:  verifier,
			challenge: verifier,
			method:    "md5",
			wantErr:   true,
		},
		{
			name:      "plain verifier against S256 challenge",
			verifier:  verifier,
			challenge: s256Challenge(verifier),
			method:    PKCEMethodPlain,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyChallenge(tt.verifier, tt.challenge, tt.method)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyChallenge() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
