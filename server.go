package oauth

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/arkadialabs/kv-oauth/instrumentation"
	"github.com/arkadialabs/kv-oauth/security"
	"github.com/arkadialabs/kv-oauth/server"
	"github.com/arkadialabs/kv-oauth/storage"
)

// Server wires the OAuth core together with its security and observability
// components. Embed it via Handler for the HTTP surface, or call the
// server methods directly for custom transports.
type Server struct {
	*server.Server

	Instrumentation         *instrumentation.Instrumentation
	RegistrationRateLimiter *security.RateLimiter

	config *Config
	logger *slog.Logger
}

// New creates a fully wired OAuth server on top of the given storage
// backend. The backend is an explicit dependency: pass memory.New() for
// tests and single-instance deployments, or a valkey.Store for production.
func New(cfg *Config, kv storage.KV) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if kv == nil {
		return nil, fmt.Errorf("storage is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cipher, err := buildCipher(cfg)
	if err != nil {
		return nil, err
	}

	cfg.RateLimit.applyDefaults()

	core, err := server.New(kv, cipher, &server.Config{
		Issuer:                      strings.TrimSuffix(cfg.Issuer, "/"),
		GrantTTL:                    cfg.GrantTTL,
		AccessTokenTTL:              cfg.AccessTokenTTL,
		RefreshTokenTTL:             cfg.RefreshTokenTTL,
		DisableRefreshTokenRotation: cfg.DisableRefreshTokenRotation,
		RequirePKCE:                 cfg.RequirePKCE,
		DisallowPlainPKCE:           cfg.DisallowPlainPKCE,
		SupportedScopes:             cfg.SupportedScopes,
	}, logger)
	if err != nil {
		return nil, err
	}

	core.SetAuditor(security.NewAuditor(logger, cfg.AuditEnabled))
	core.SetSecurityEventRateLimiter(security.NewRateLimiter(
		cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger))

	s := &Server{
		Server: core,
		RegistrationRateLimiter: security.NewRateLimiter(
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
		config: cfg,
		logger: logger,
	}

	return s, nil
}

// SetInstrumentation attaches OpenTelemetry instrumentation to the server
// and its core flows.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.Server.SetMetrics(inst.Metrics())
	}
}

// Stop releases background resources (rate limiter cleanup goroutines).
// The storage backend is owned by the caller and is not closed here.
func (s *Server) Stop() {
	if s.Server.SecurityEventRateLimiter != nil {
		s.Server.SecurityEventRateLimiter.Stop()
	}
	if s.RegistrationRateLimiter != nil {
		s.RegistrationRateLimiter.Stop()
	}
}

func buildCipher(cfg *Config) (*security.Cipher, error) {
	switch {
	case len(cfg.EncryptionKey) > 0:
		return security.NewCipher(cfg.EncryptionKey)
	case cfg.EncryptionPassphrase != "":
		return security.NewCipherFromPassphrase(cfg.EncryptionPassphrase)
	default:
		return nil, fmt.Errorf("either EncryptionKey or EncryptionPassphrase is required")
	}
}
