package server

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/arkadialabs/kv-oauth/internal/testutil"
	"github.com/arkadialabs/kv-oauth/security"
	"github.com/arkadialabs/kv-oauth/storage/memory"
)

// newTestServer builds a server over a fresh in-memory store with a
// deterministic cipher. A nil cfg gets secure defaults.
func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	kv := memory.New()
	t.Cleanup(kv.Stop)

	cipher, err := security.NewCipher(testutil.TestEncryptionKey())
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(kv, cipher, cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// registerConfidentialClient registers a confidential client and returns
// it with its plaintext secret.
func registerConfidentialClient(t *testing.T, s *Server) (*Client, string) {
	t.Helper()
	client, secret, err := s.RegisterClient(context.Background(), "Test Confidential", ClientTypeConfidential,
		[]string{"https://example.com/callback"})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	return client, secret
}

// registerPublicClient registers a public client.
func registerPublicClient(t *testing.T, s *Server) *Client {
	t.Helper()
	client, secret, err := s.RegisterClient(context.Background(), "Test Public", ClientTypePublic,
		[]string{"https://example.com/callback"})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	if secret != "" {
		t.Fatalf("public client registration returned a secret")
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	cipher, err := security.NewCipher(testutil.TestEncryptionKey())
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	kv := memory.New()
	t.Cleanup(kv.Stop)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := New(nil, cipher, nil, logger); err == nil {
		t.Error("New() without storage expected error")
	}
	if _, err := New(kv, nil, nil, logger); err == nil {
		t.Error("New() without cipher expected error")
	}
	if _, err := New(kv, cipher, nil, logger); err != nil {
		t.Errorf("New() with nil config error = %v", err)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	s := newTestServer(t, &Config{})

	if s.Config.GrantTTL != DefaultGrantTTL {
		t.Errorf("GrantTTL = %d, want %d", s.Config.GrantTTL, DefaultGrantTTL)
	}
	if s.Config.AccessTokenTTL != DefaultAccessTokenTTL {
		t.Errorf("AccessTokenTTL = %d, want %d", s.Config.AccessTokenTTL, DefaultAccessTokenTTL)
	}
	if s.Config.RefreshTokenTTL != DefaultRefreshTokenTTL {
		t.Errorf("RefreshTokenTTL = %d, want %d", s.Config.RefreshTokenTTL, DefaultRefreshTokenTTL)
	}
}
