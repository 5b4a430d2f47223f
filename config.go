package oauth

import "log/slog"

// Config configures the embeddable OAuth server facade.
type Config struct {
	// Issuer is the public base URL of this server (required), e.g.
	// "https://auth.example.com". It appears in discovery metadata and is
	// used to build endpoint URLs.
	Issuer string

	// EncryptionKey is the 32-byte AES-256 key used to encrypt grant and
	// token records at rest. Exactly one of EncryptionKey or
	// EncryptionPassphrase must be set.
	EncryptionKey []byte

	// EncryptionPassphrase derives the encryption key via SHA-256 when a
	// raw key is not provided.
	EncryptionPassphrase string

	// GrantTTL is the authorization grant lifetime in seconds (default 600).
	GrantTTL int64

	// AccessTokenTTL is the access token lifetime in seconds (default 3600).
	AccessTokenTTL int64

	// RefreshTokenTTL is the refresh token lifetime in seconds
	// (default 90 days).
	RefreshTokenTTL int64

	// DisableRefreshTokenRotation selects OAuth 2.0 compatibility mode:
	// refreshes return the same refresh token instead of rotating it.
	DisableRefreshTokenRotation bool

	// RequirePKCE makes PKCE mandatory for all clients, not just public ones.
	RequirePKCE bool

	// DisallowPlainPKCE restricts the code challenge method to S256.
	DisallowPlainPKCE bool

	// SupportedScopes restricts grantable scopes. Empty accepts any scope.
	SupportedScopes []string

	// RegistrationAccessToken gates POST /oauth/register. When empty and
	// AllowPublicClientRegistration is false, the endpoint is disabled.
	RegistrationAccessToken string

	// AllowPublicClientRegistration opens the registration endpoint to
	// unauthenticated callers. Rate limiting still applies.
	AllowPublicClientRegistration bool

	// AuditEnabled turns on structured security audit logging.
	AuditEnabled bool

	// RateLimit configures per-IP rate limiting for the registration
	// endpoint and per-client limiting of security event logging.
	RateLimit RateLimitConfig

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger
}

// RateLimitConfig holds token-bucket rate limiter settings.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per identifier (default 5).
	RequestsPerSecond int

	// Burst is the bucket size (default 10).
	Burst int
}

func (c *RateLimitConfig) applyDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
}
