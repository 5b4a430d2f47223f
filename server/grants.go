package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arkadialabs/kv-oauth/storage"
)

// Grant is an approved authorization awaiting exchange. The grant record
// is stored encrypted under grant:{userID}:{grantID}; the code is indexed
// separately by digest so the exchange path never scans.
type Grant struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	ClientID            string    `json:"client_id"`
	Scope               string    `json:"scope,omitempty"`
	Code                string    `json:"code"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// codeIndex maps an authorization code digest to the grant it belongs to.
// Stored as plain JSON: it contains no secret, and its atomic deletion is
// what enforces single use.
type codeIndex struct {
	UserID  string `json:"user_id"`
	GrantID string `json:"grant_id"`
}

// CreateGrant records an approved authorization and mints its code. The
// grant ID and code are independent secrets: the code is single-use and
// consumed at exchange, the grant ID survives in token records for
// revocation.
//
// PKCE rules: public clients must supply a code challenge. A challenge
// without a method defaults to "plain" unless the server disallows it.
func (s *Server) CreateGrant(ctx context.Context, userID, clientID, scope, codeChallenge, codeChallengeMethod string) (*Grant, error) {
	if userID == "" {
		return nil, fmt.Errorf("%s: user_id is required", ErrorCodeInvalidRequest)
	}

	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if err := s.validateScopes(scope); err != nil {
		s.auditFailure(userID, clientID, "invalid_scope")
		return nil, fmt.Errorf("%s: %w", ErrorCodeInvalidScope, err)
	}

	if codeChallenge == "" {
		if client.IsPublic() {
			s.auditFailure(userID, clientID, "missing_pkce_for_public_client")
			return nil, fmt.Errorf("%s: public clients must use PKCE", ErrorCodeInvalidRequest)
		}
		if s.Config.RequirePKCE {
			s.auditFailure(userID, clientID, "missing_pkce_parameters")
			return nil, fmt.Errorf("%s: code_challenge is required", ErrorCodeInvalidRequest)
		}
		if codeChallengeMethod != "" {
			return nil, fmt.Errorf("%s: code_challenge_method without code_challenge", ErrorCodeInvalidRequest)
		}
	} else {
		if codeChallengeMethod == "" {
			codeChallengeMethod = "plain"
		}
		switch codeChallengeMethod {
		case "S256":
		case "plain":
			if s.Config.DisallowPlainPKCE {
				s.auditFailure(userID, clientID, "plain_pkce_not_allowed")
				return nil, fmt.Errorf("%s: 'plain' code_challenge_method is not allowed (only S256)", ErrorCodeInvalidRequest)
			}
		default:
			s.auditFailure(userID, clientID, fmt.Sprintf("invalid_pkce_method: %s", codeChallengeMethod))
			return nil, fmt.Errorf("%s: unsupported code_challenge_method: %s", ErrorCodeInvalidRequest, codeChallengeMethod)
		}
	}

	now := time.Now()
	grant := &Grant{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ClientID:            clientID,
		Scope:               scope,
		Code:                generateRandomToken(),
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.GrantTTL) * time.Second),
	}

	ttl := time.Duration(s.Config.GrantTTL) * time.Second

	if err := s.putEncrypted(ctx, grantKey(userID, grant.ID), grant, ttl); err != nil {
		return nil, fmt.Errorf("failed to store grant: %w", err)
	}

	idx := codeIndex{UserID: userID, GrantID: grant.ID}
	if err := storage.PutJSON(ctx, s.kv, codeIndexKey(grant.Code), idx, ttl); err != nil {
		// Best effort: without the index the grant is unreachable anyway
		// and expires with its TTL.
		if _, delErr := s.kv.Delete(ctx, grantKey(userID, grant.ID)); delErr != nil {
			s.Logger.Warn("Failed to clean up orphaned grant", "error", delErr)
		}
		return nil, fmt.Errorf("failed to store code index: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogGrantCreated(userID, clientID, grant.ID, scope)
	}
	if s.Metrics != nil {
		s.Metrics.RecordGrantCreated(ctx, clientID)
	}

	s.Logger.Info("Authorization grant created",
		"grant_id", grant.ID,
		"client_id", clientID,
		"pkce_method", codeChallengeMethod)

	return grant, nil
}
