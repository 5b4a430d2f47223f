package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arkadialabs/kv-oauth/storage"
)

// Client types per OAuth 2.1 section 2.1.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Client is a registered OAuth client. The secret is never stored; only
// its bcrypt hash survives registration. Client records are immutable
// after creation.
type Client struct {
	ClientID         string    `json:"client_id"`
	ClientName       string    `json:"client_name"`
	ClientSecretHash string    `json:"client_secret_hash,omitempty"`
	ClientType       string    `json:"client_type"`
	RedirectURIs     []string  `json:"redirect_uris"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsPublic reports whether the client is a public client (no secret,
// PKCE mandatory).
func (c *Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

// RegisterClient registers a new OAuth client. For confidential clients it
// returns the generated plaintext secret exactly once; afterwards only the
// bcrypt hash exists.
func (s *Server) RegisterClient(ctx context.Context, name, clientType string, redirectURIs []string) (*Client, string, error) {
	if name == "" {
		return nil, "", fmt.Errorf("%s: client_name is required", ErrorCodeInvalidRequest)
	}
	if clientType != ClientTypeConfidential && clientType != ClientTypePublic {
		return nil, "", fmt.Errorf("%s: client_type must be %q or %q", ErrorCodeInvalidRequest, ClientTypeConfidential, ClientTypePublic)
	}
	if err := validateRegisteredURIs(redirectURIs); err != nil {
		return nil, "", fmt.Errorf("%s: %w", ErrorCodeInvalidRedirectURI, err)
	}

	client := &Client{
		ClientID:     uuid.NewString(),
		ClientName:   name,
		ClientType:   clientType,
		RedirectURIs: redirectURIs,
		CreatedAt:    time.Now(),
	}

	var clientSecret string
	if clientType == ClientTypeConfidential {
		clientSecret = generateRandomToken()
		hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.ClientSecretHash = string(hash)
	}

	// Client records have no TTL; registrations persist until storage is wiped.
	if err := storage.PutJSON(ctx, s.kv, clientKey(client.ClientID), client, 0); err != nil {
		return nil, "", fmt.Errorf("failed to store client: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.ClientID, clientType)
	}
	if s.Metrics != nil {
		s.Metrics.RecordClientRegistered(ctx, clientType)
	}

	s.Logger.Info("Client registered",
		"client_id", client.ClientID,
		"client_type", clientType)

	return client, clientSecret, nil
}

// GetClient looks up a registered client. A missing client short-circuits
// both the authorization and token flows.
func (s *Server) GetClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%s: client_id is required", ErrorCodeInvalidClient)
	}

	client, err := storage.GetJSON[Client](ctx, s.kv, clientKey(clientID))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: unknown client", ErrorCodeInvalidClient)
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

// ValidateClientCredentials authenticates a client for the token endpoint.
// Confidential clients must present their secret (verified against the
// bcrypt hash); public clients must not present one.
func (s *Server) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if client.IsPublic() {
		if clientSecret != "" {
			s.auditFailure("", clientID, "secret_presented_by_public_client")
			return nil, fmt.Errorf("%s: public clients must not send a client secret", ErrorCodeInvalidClient)
		}
		return client, nil
	}

	if clientSecret == "" {
		s.auditFailure("", clientID, "missing_client_secret")
		return nil, fmt.Errorf("%s: client secret is required", ErrorCodeInvalidClient)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)); err != nil {
		s.auditFailure("", clientID, "invalid_client_secret")
		return nil, fmt.Errorf("%s: invalid client credentials", ErrorCodeInvalidClient)
	}

	return client, nil
}
