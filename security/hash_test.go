package security

import "testing"

func TestDigest(t *testing.T) {
	a := Digest("some-opaque-token")
	b := Digest("some-opaque-token")
	c := Digest("other-token")

	if a != b {
		t.Error("Digest() is not deterministic")
	}
	if a == c {
		t.Error("Digest() collided for different inputs")
	}
	if a == "some-opaque-token" {
		t.Error("Digest() returned its input")
	}

	// base64url(SHA-256) without padding is always 43 characters.
	if len(a) != 43 {
		t.Errorf("Digest() length = %d, want 43", len(a))
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want %q", got, "<empty>")
	}

	got := hashForLogging("user@example.com")
	if len(got) != 16 {
		t.Errorf("hashForLogging() length = %d, want 16", len(got))
	}
	if got == "user@example.com" {
		t.Error("hashForLogging() returned its input")
	}
	if got != hashForLogging("user@example.com") {
		t.Error("hashForLogging() is not deterministic")
	}
}
