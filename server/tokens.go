package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arkadialabs/kv-oauth/security"
	"github.com/arkadialabs/kv-oauth/storage"
)

// UserProps is the authenticated identity attached to a validated access
// token.
type UserProps struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
	GrantID  string `json:"grant_id"`
	Scope    string `json:"scope,omitempty"`
}

// IssuedToken is the result of a successful code exchange or refresh.
type IssuedToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// accessTokenRecord is the encrypted record backing an access token.
// Timestamps are unix seconds so expiry survives JSON round-trips exactly.
type accessTokenRecord struct {
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	GrantID   string `json:"grant_id"`
	Scope     string `json:"scope,omitempty"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// refreshIndex maps a refresh token digest to its owning grant. The full
// record lives under a per-grant key so revocation fan-out reaches it; an
// index left dangling by fan-out resolves to not-found and is deleted
// lazily.
type refreshIndex struct {
	UserID  string `json:"user_id"`
	GrantID string `json:"grant_id"`
}

// refreshTokenRecord is the encrypted per-grant refresh token record.
type refreshTokenRecord struct {
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	GrantID   string `json:"grant_id"`
	Scope     string `json:"scope,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ExchangeCode exchanges a single-use authorization code for tokens.
//
// The ordering is deliberate: PKCE is verified before the code is consumed
// so a failed verifier does not burn the code, and the code index is
// deleted before any token is minted so at most one exchange can ever
// succeed. The atomicity of the store's Delete is what makes two
// concurrent exchanges resolve to one winner.
//
// Every negative outcome maps to invalid_grant; the caller never learns
// which step failed.
func (s *Server) ExchangeCode(ctx context.Context, code, clientID, codeVerifier string) (*IssuedToken, error) {
	start := time.Now()

	if code == "" {
		return nil, fmt.Errorf("%s: code is required", ErrorCodeInvalidGrant)
	}

	idx, err := storage.GetJSON[codeIndex](ctx, s.kv, codeIndexKey(code))
	if err != nil {
		if isNotFound(err) {
			s.auditFailure("", clientID, "unknown_or_consumed_code")
			return nil, fmt.Errorf("%s: invalid authorization code", ErrorCodeInvalidGrant)
		}
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}

	grant, err := getEncrypted[Grant](ctx, s, grantKey(idx.UserID, idx.GrantID))
	if err != nil {
		if isNotFound(err) {
			// Index present but grant gone: either a replay racing the
			// winner's cleanup or clock skew between the two TTLs. Treat
			// as replay for alerting and clear the stale index.
			if s.Auditor != nil && s.allowSecurityEvent("replay:"+clientID) {
				s.Auditor.LogCodeReplay(clientID)
			}
			if s.Metrics != nil {
				s.Metrics.RecordCodeReplay(ctx, clientID)
			}
			if _, delErr := s.kv.Delete(ctx, codeIndexKey(code)); delErr != nil {
				s.Logger.Warn("Failed to delete stale code index", "error", delErr)
			}
			return nil, fmt.Errorf("%s: invalid authorization code", ErrorCodeInvalidGrant)
		}
		return nil, fmt.Errorf("failed to load grant: %w", err)
	}

	if grant.ClientID != clientID {
		s.auditFailure(grant.UserID, clientID, "code_client_mismatch")
		return nil, fmt.Errorf("%s: authorization code was not issued to this client", ErrorCodeInvalidGrant)
	}

	if time.Now().After(grant.ExpiresAt) {
		if _, delErr := s.kv.Delete(ctx, codeIndexKey(code)); delErr != nil {
			s.Logger.Warn("Failed to delete expired code index", "error", delErr)
		}
		if _, delErr := s.kv.Delete(ctx, grantKey(grant.UserID, grant.ID)); delErr != nil {
			s.Logger.Warn("Failed to delete expired grant", "error", delErr)
		}
		s.auditFailure(grant.UserID, clientID, "expired_code")
		return nil, fmt.Errorf("%s: authorization code has expired", ErrorCodeInvalidGrant)
	}

	// PKCE verification happens before consumption: a client that fumbles
	// its verifier may retry with the correct one.
	if grant.CodeChallenge != "" {
		if codeVerifier == "" {
			s.auditFailure(grant.UserID, clientID, "missing_code_verifier")
			return nil, fmt.Errorf("%s: code_verifier is required", ErrorCodeInvalidGrant)
		}
		if err := security.VerifyChallenge(codeVerifier, grant.CodeChallenge, grant.CodeChallengeMethod); err != nil {
			s.auditFailure(grant.UserID, clientID, "pkce_verification_failed")
			if s.Metrics != nil {
				s.Metrics.RecordPKCEFailure(ctx, clientID)
			}
			return nil, fmt.Errorf("%s: PKCE verification failed", ErrorCodeInvalidGrant)
		}
	} else if codeVerifier != "" {
		// OAuth 2.1: a verifier for a grant issued without a challenge
		// must be rejected.
		s.auditFailure(grant.UserID, clientID, "unexpected_code_verifier")
		return nil, fmt.Errorf("%s: code_verifier provided but no challenge was registered", ErrorCodeInvalidGrant)
	}

	// Consume the code. The atomic delete is the single-use gate: exactly
	// one concurrent exchange observes the removal, everyone else loses.
	// Fail closed on storage errors; an unconfirmed delete must not mint.
	consumed, err := s.kv.Delete(ctx, codeIndexKey(code))
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	if !consumed {
		if s.Auditor != nil && s.allowSecurityEvent("replay:"+clientID) {
			s.Auditor.LogCodeReplay(clientID)
		}
		if s.Metrics != nil {
			s.Metrics.RecordCodeReplay(ctx, clientID)
		}
		return nil, fmt.Errorf("%s: invalid authorization code", ErrorCodeInvalidGrant)
	}

	token, err := s.mintTokens(ctx, grant.UserID, grant.ClientID, grant.ID, grant.Scope)
	if err != nil {
		return nil, err
	}

	// The grant record has served its purpose. Best effort: it expires
	// with its TTL regardless, and the consumed index already blocks reuse.
	if _, err := s.kv.Delete(ctx, grantKey(grant.UserID, grant.ID)); err != nil {
		s.Logger.Warn("Failed to delete exchanged grant", "error", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(grant.UserID, grant.ClientID, grant.ID, grant.Scope)
	}
	if s.Metrics != nil {
		s.Metrics.RecordCodeExchanged(ctx, clientID, time.Since(start))
	}

	s.Logger.Info("Authorization code exchanged",
		"grant_id", grant.ID,
		"client_id", clientID)

	return token, nil
}

// mintTokens issues a fresh access token and refresh token pair for a grant.
func (s *Server) mintTokens(ctx context.Context, userID, clientID, grantID, scope string) (*IssuedToken, error) {
	accessToken, err := s.mintAccessToken(ctx, userID, clientID, grantID, scope)
	if err != nil {
		return nil, err
	}

	refreshToken := generateRandomToken()
	if err := s.storeRefreshToken(ctx, refreshToken, userID, clientID, grantID, scope); err != nil {
		return nil, err
	}

	return &IssuedToken{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		Scope:        scope,
	}, nil
}

// mintAccessToken stores a new access token record and returns the opaque
// token string {userID}.{grantID}.{tokenID}. The structure is a routing
// hint for the storage lookup; validity comes solely from the record.
func (s *Server) mintAccessToken(ctx context.Context, userID, clientID, grantID, scope string) (string, error) {
	tokenID := generateRandomToken()
	now := time.Now()

	rec := accessTokenRecord{
		UserID:    userID,
		ClientID:  clientID,
		GrantID:   grantID,
		Scope:     scope,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Unix() + s.Config.AccessTokenTTL,
	}

	ttl := time.Duration(s.Config.AccessTokenTTL) * time.Second
	if err := s.putEncrypted(ctx, tokenKey(userID, grantID, tokenID), rec, ttl); err != nil {
		return "", fmt.Errorf("failed to store access token: %w", err)
	}

	return userID + "." + grantID + "." + tokenID, nil
}

// storeRefreshToken writes the refresh token's primary index and its
// per-grant record.
func (s *Server) storeRefreshToken(ctx context.Context, refreshToken, userID, clientID, grantID, scope string) error {
	ttl := time.Duration(s.Config.RefreshTokenTTL) * time.Second

	rec := refreshTokenRecord{
		UserID:    userID,
		ClientID:  clientID,
		GrantID:   grantID,
		Scope:     scope,
		CreatedAt: time.Now().Unix(),
	}
	if err := s.putEncrypted(ctx, refreshRecordKey(userID, grantID, refreshToken), rec, ttl); err != nil {
		return fmt.Errorf("failed to store refresh token record: %w", err)
	}

	idx := refreshIndex{UserID: userID, GrantID: grantID}
	if err := storage.PutJSON(ctx, s.kv, refreshIndexKey(refreshToken), idx, ttl); err != nil {
		return fmt.Errorf("failed to store refresh token index: %w", err)
	}
	return nil
}

// ValidateToken resolves an access token to the identity it carries.
//
// A malformed or unknown token returns (nil, nil): invalid input is an
// expected outcome, not a fault. A non-nil error means the storage backend
// itself failed and the caller must fail closed. The only side effect is
// lazy deletion of expired records.
func (s *Server) ValidateToken(ctx context.Context, accessToken string) (*UserProps, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, nil
	}
	userID, grantID, tokenID := parts[0], parts[1], parts[2]

	rec, err := getEncrypted[accessTokenRecord](ctx, s, tokenKey(userID, grantID, tokenID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}

	if time.Now().Unix() >= rec.ExpiresAt {
		if _, delErr := s.kv.Delete(ctx, tokenKey(userID, grantID, tokenID)); delErr != nil {
			s.Logger.Warn("Failed to delete expired access token", "error", delErr)
		}
		return nil, nil
	}

	if s.Metrics != nil {
		s.Metrics.RecordTokenValidated(ctx, rec.ClientID)
	}

	return &UserProps{
		UserID:   rec.UserID,
		ClientID: rec.ClientID,
		GrantID:  rec.GrantID,
		Scope:    rec.Scope,
	}, nil
}

// RefreshAccessToken mints a new access token from a refresh token.
//
// Under the default OAuth 2.1 policy the refresh token is rotated: the old
// one is invalidated and a new one returned. With rotation disabled the
// same token is returned unchanged. The two policies are never mixed.
func (s *Server) RefreshAccessToken(ctx context.Context, refreshToken, clientID string) (*IssuedToken, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh_token is required", ErrorCodeInvalidGrant)
	}

	idx, err := storage.GetJSON[refreshIndex](ctx, s.kv, refreshIndexKey(refreshToken))
	if err != nil {
		if isNotFound(err) {
			s.auditFailure("", clientID, "unknown_refresh_token")
			return nil, fmt.Errorf("%s: invalid refresh token", ErrorCodeInvalidGrant)
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	rec, err := getEncrypted[refreshTokenRecord](ctx, s, refreshRecordKey(idx.UserID, idx.GrantID, refreshToken))
	if err != nil {
		if isNotFound(err) {
			// The grant was revoked; the index is a dangling leftover.
			if _, delErr := s.kv.Delete(ctx, refreshIndexKey(refreshToken)); delErr != nil {
				s.Logger.Warn("Failed to delete dangling refresh index", "error", delErr)
			}
			s.auditFailure(idx.UserID, clientID, "revoked_refresh_token")
			return nil, fmt.Errorf("%s: invalid refresh token", ErrorCodeInvalidGrant)
		}
		return nil, fmt.Errorf("failed to load refresh token record: %w", err)
	}

	if rec.ClientID != clientID {
		s.auditFailure(rec.UserID, clientID, "refresh_token_client_mismatch")
		return nil, fmt.Errorf("%s: refresh token was not issued to this client", ErrorCodeInvalidGrant)
	}

	accessToken, err := s.mintAccessToken(ctx, rec.UserID, rec.ClientID, rec.GrantID, rec.Scope)
	if err != nil {
		return nil, err
	}

	rotated := !s.Config.DisableRefreshTokenRotation
	newRefreshToken := refreshToken
	if rotated {
		newRefreshToken = generateRandomToken()
		if err := s.storeRefreshToken(ctx, newRefreshToken, rec.UserID, rec.ClientID, rec.GrantID, rec.Scope); err != nil {
			return nil, err
		}
		// Invalidate the old token only after the new one is durable, so a
		// storage fault cannot strand the client with neither.
		if _, err := s.kv.Delete(ctx, refreshIndexKey(refreshToken)); err != nil {
			s.Logger.Warn("Failed to delete rotated refresh index", "error", err)
		}
		if _, err := s.kv.Delete(ctx, refreshRecordKey(rec.UserID, rec.GrantID, refreshToken)); err != nil {
			s.Logger.Warn("Failed to delete rotated refresh record", "error", err)
		}
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(rec.UserID, rec.ClientID, rec.GrantID, rotated)
	}
	if s.Metrics != nil {
		s.Metrics.RecordTokenRefreshed(ctx, clientID, rotated)
	}

	s.Logger.Info("Access token refreshed",
		"grant_id", rec.GrantID,
		"client_id", clientID,
		"rotated", rotated)

	return &IssuedToken{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		Scope:        rec.Scope,
	}, nil
}
