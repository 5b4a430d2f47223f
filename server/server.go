// Package server implements the OAuth 2.1 authorization server core: grant
// creation, authorization-code exchange with PKCE, opaque token issuance and
// validation, refresh rotation, client registration, and grant revocation.
// All state lives behind the storage.KV contract; the package holds no
// in-process session state beyond rate limiters.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/arkadialabs/kv-oauth/instrumentation"
	"github.com/arkadialabs/kv-oauth/security"
	"github.com/arkadialabs/kv-oauth/storage"
)

// safeTruncate safely truncates a string to maxLen characters without
// panicking. Used when logging token prefixes.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Server implements the OAuth 2.1 server logic over a key-value store.
// Grant and token payloads are encrypted at rest with the injected cipher;
// opaque secrets (codes, token IDs, refresh tokens) appear in the keyspace
// only as SHA-256 digests.
type Server struct {
	kv     storage.KV
	cipher *security.Cipher

	Auditor                  *security.Auditor
	SecurityEventRateLimiter *security.RateLimiter // caps audit log volume per client
	Metrics                  *instrumentation.Metrics
	Logger                   *slog.Logger
	Config                   *Config
}

// New creates a new OAuth server
func New(kv storage.KV, cipher *security.Cipher, config *Config, logger *slog.Logger) (*Server, error) {
	if kv == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		kv:     kv,
		cipher: cipher,
		Config: config,
		Logger: logger,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetSecurityEventRateLimiter sets the rate limiter for security event
// logging. This prevents log flooding from repeated auth failures.
func (s *Server) SetSecurityEventRateLimiter(rl *security.RateLimiter) {
	s.SecurityEventRateLimiter = rl
}

// SetMetrics sets the OpenTelemetry metrics recorder.
func (s *Server) SetMetrics(m *instrumentation.Metrics) {
	s.Metrics = m
}

// allowSecurityEvent reports whether a security event for the identifier
// should be logged, honoring the event rate limiter when configured.
func (s *Server) allowSecurityEvent(identifier string) bool {
	if s.SecurityEventRateLimiter == nil {
		return true
	}
	return s.SecurityEventRateLimiter.Allow(identifier)
}

// auditFailure logs an auth failure through the auditor, rate-limited per
// client so a brute-force run cannot flood the audit stream.
func (s *Server) auditFailure(userID, clientID, reason string) {
	if s.Auditor == nil {
		return
	}
	if !s.allowSecurityEvent("authfail:" + clientID) {
		return
	}
	s.Auditor.LogAuthFailure(userID, clientID, reason)
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, token IDs, and refresh
// tokens.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// putEncrypted marshals v, encrypts it, and stores it at key.
func (s *Server) putEncrypted(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	sealed, err := s.cipher.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt record: %w", err)
	}
	return s.kv.Put(ctx, key, []byte(sealed), ttl)
}

// getEncrypted fetches and decrypts the record at key. Decryption failure
// is reported as storage.ErrNotFound so callers treat tampered or
// wrong-key records exactly like absent ones.
func getEncrypted[T any](ctx context.Context, s *Server, key string) (*T, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.cipher.Decrypt(string(data))
	if err != nil {
		s.Logger.Warn("Failed to decrypt stored record, treating as not found",
			"key_prefix", safeTruncate(key, 16))
		return nil, storage.ErrNotFound
	}

	var v T
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &v, nil
}

// isNotFound reports whether err is the storage not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
