package server

import (
	"context"
	"strings"
	"testing"
)

func TestRegisterClient_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		clientName   string
		clientType   string
		redirectURIs []string
		wantPrefix   string
	}{
		{
			name:         "missing name",
			clientName:   "",
			clientType:   ClientTypeConfidential,
			redirectURIs: []string{"https://example.com/cb"},
			wantPrefix:   ErrorCodeInvalidRequest,
		},
		{
			name:         "unknown client type",
			clientName:   "app",
			clientType:   "hybrid",
			redirectURIs: []string{"https://example.com/cb"},
			wantPrefix:   ErrorCodeInvalidRequest,
		},
		{
			name:         "no redirect URIs",
			clientName:   "app",
			clientType:   ClientTypeConfidential,
			redirectURIs: nil,
			wantPrefix:   ErrorCodeInvalidRedirectURI,
		},
		{
			name:         "relative redirect URI",
			clientName:   "app",
			clientType:   ClientTypeConfidential,
			redirectURIs: []string{"/callback"},
			wantPrefix:   ErrorCodeInvalidRedirectURI,
		},
		{
			name:         "plain http on a public host",
			clientName:   "app",
			clientType:   ClientTypeConfidential,
			redirectURIs: []string{"http://example.com/cb"},
			wantPrefix:   ErrorCodeInvalidRedirectURI,
		},
		{
			name:         "redirect URI with fragment",
			clientName:   "app",
			clientType:   ClientTypeConfidential,
			redirectURIs: []string{"https://example.com/cb#frag"},
			wantPrefix:   ErrorCodeInvalidRedirectURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.RegisterClient(ctx, tt.clientName, tt.clientType, tt.redirectURIs)
			if err == nil {
				t.Fatal("RegisterClient() expected error")
			}
			if !strings.HasPrefix(err.Error(), tt.wantPrefix) {
				t.Errorf("RegisterClient() error = %q, want prefix %q", err, tt.wantPrefix)
			}
		})
	}
}

func TestRegisterClient_LoopbackHTTPAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	uris := []string{
		"http://localhost:8080/callback",
		"http://127.0.0.1/callback",
		"http://[::1]:9090/callback",
	}
	client, _, err := s.RegisterClient(context.Background(), "native app", ClientTypePublic, uris)
	if err != nil {
		t.Fatalf("RegisterClient() with loopback URIs error = %v", err)
	}
	if len(client.RedirectURIs) != 3 {
		t.Errorf("client stored %d redirect URIs, want 3", len(client.RedirectURIs))
	}
}

func TestRegisterClient_Confidential(t *testing.T) {
	s := newTestServer(t, nil)

	client, secret := registerConfidentialClient(t, s)
	if client.ClientID == "" {
		t.Error("client_id is empty")
	}
	if secret == "" {
		t.Fatal("confidential client registration returned no secret")
	}
	if client.ClientSecretHash == "" {
		t.Error("client secret hash is empty")
	}
	if client.ClientSecretHash == secret {
		t.Error("client secret stored in plaintext")
	}
	if client.IsPublic() {
		t.Error("IsPublic() = true for confidential client")
	}
}

func TestGetClient(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	client, _ := registerConfidentialClient(t, s)

	got, err := s.GetClient(ctx, client.ClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientID != client.ClientID || got.ClientName != client.ClientName {
		t.Errorf("GetClient() = %+v, want %+v", got, client)
	}

	if _, err := s.GetClient(ctx, "nonexistent"); err == nil {
		t.Error("GetClient() for unknown client expected error")
	} else if !strings.HasPrefix(err.Error(), ErrorCodeInvalidClient) {
		t.Errorf("GetClient() error = %q, want prefix %q", err, ErrorCodeInvalidClient)
	}

	if _, err := s.GetClient(ctx, ""); err == nil {
		t.Error("GetClient() with empty id expected error")
	}
}

func TestValidateClientCredentials(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	confidential, secret := registerConfidentialClient(t, s)
	public := registerPublicClient(t, s)

	t.Run("correct secret", func(t *testing.T) {
		got, err := s.ValidateClientCredentials(ctx, confidential.ClientID, secret)
		if err != nil {
			t.Fatalf("ValidateClientCredentials() error = %v", err)
		}
		if got.ClientID != confidential.ClientID {
			t.Errorf("ClientID = %q, want %q", got.ClientID, confidential.ClientID)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := s.ValidateClientCredentials(ctx, confidential.ClientID, "wrong")
		if err == nil {
			t.Fatal("ValidateClientCredentials() with wrong secret expected error")
		}
		if !strings.HasPrefix(err.Error(), ErrorCodeInvalidClient) {
			t.Errorf("error = %q, want prefix %q", err, ErrorCodeInvalidClient)
		}
	})

	t.Run("missing secret for confidential client", func(t *testing.T) {
		if _, err := s.ValidateClientCredentials(ctx, confidential.ClientID, ""); err == nil {
			t.Error("ValidateClientCredentials() without secret expected error")
		}
	})

	t.Run("public client without secret", func(t *testing.T) {
		got, err := s.ValidateClientCredentials(ctx, public.ClientID, "")
		if err != nil {
			t.Fatalf("ValidateClientCredentials() error = %v", err)
		}
		if !got.IsPublic() {
			t.Error("IsPublic() = false for public client")
		}
	})

	t.Run("public client presenting a secret", func(t *testing.T) {
		if _, err := s.ValidateClientCredentials(ctx, public.ClientID, "anything"); err == nil {
			t.Error("ValidateClientCredentials() with secret on public client expected error")
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		if _, err := s.ValidateClientCredentials(ctx, "nonexistent", "secret"); err == nil {
			t.Error("ValidateClientCredentials() for unknown client expected error")
		}
	})
}
