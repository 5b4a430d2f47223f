package server

import "log/slog"

// Default TTLs in seconds.
const (
	// DefaultGrantTTL is the lifetime of an authorization grant and its
	// code (10 minutes, the RFC 6749 recommended maximum).
	DefaultGrantTTL = 600

	// DefaultAccessTokenTTL is the lifetime of an access token (1 hour).
	DefaultAccessTokenTTL = 3600

	// DefaultRefreshTokenTTL is the lifetime of a refresh token (90 days).
	DefaultRefreshTokenTTL = 90 * 24 * 3600
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the issuer URL reported in discovery metadata, e.g.
	// "https://auth.example.com".
	Issuer string

	// GrantTTL is the authorization grant and code lifetime in seconds
	// (default 600).
	GrantTTL int64

	// AccessTokenTTL is the access token lifetime in seconds (default 3600).
	AccessTokenTTL int64

	// RefreshTokenTTL is the refresh token lifetime in seconds
	// (default 90 days).
	RefreshTokenTTL int64

	// DisableRefreshTokenRotation switches refresh handling from the
	// OAuth 2.1 default (every refresh returns a new refresh token and
	// invalidates the old one) to OAuth 2.0 compatibility mode (the same
	// refresh token is returned unchanged). The policy applies uniformly
	// to the whole deployment.
	DisableRefreshTokenRotation bool

	// RequirePKCE makes a code challenge mandatory for all grants,
	// including confidential clients (OAuth 2.1 recommendation).
	// Public clients must always supply a challenge regardless.
	RequirePKCE bool

	// DisallowPlainPKCE rejects the "plain" code challenge method,
	// accepting only S256.
	DisallowPlainPKCE bool

	// SupportedScopes restricts which scopes may be granted. Empty means
	// any scope string is accepted verbatim.
	SupportedScopes []string
}

// applySecureDefaults fills in zero values and warns about settings that
// weaken the OAuth 2.1 posture.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	if config.GrantTTL <= 0 {
		config.GrantTTL = DefaultGrantTTL
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}

	if config.DisableRefreshTokenRotation {
		logger.Warn("Refresh token rotation is disabled (OAuth 2.0 compatibility mode); enable rotation for OAuth 2.1 compliance")
	}
	if !config.DisallowPlainPKCE {
		logger.Warn("'plain' PKCE method is enabled; set DisallowPlainPKCE for S256-only operation")
	}
	if !config.RequirePKCE {
		logger.Info("PKCE is optional for confidential clients; public clients always require it")
	}

	return config
}
