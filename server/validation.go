package server

import (
	"fmt"
	"net/url"
	"strings"
)

// OAuth 2.0 error codes from RFC 6749.
// Note: These are intentionally duplicated from the root package errors.go
// to avoid circular imports (root imports server; server can't import root).
// Keep these in sync with errors.go.
const (
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidRedirectURI   = "invalid_redirect_uri"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
)

// ValidateRedirectURI checks that the redirect URI exactly matches one of
// the client's registered URIs. No wildcard, prefix, or port flexibility:
// exact string comparison per OAuth 2.1.
func (s *Server) ValidateRedirectURI(client *Client, redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	for _, registered := range client.RedirectURIs {
		if registered == redirectURI {
			return nil
		}
	}
	return fmt.Errorf("redirect_uri does not match any registered URI")
}

// validateScopes checks the requested scope string against the configured
// allow-list. An empty SupportedScopes config accepts any scope verbatim.
func (s *Server) validateScopes(scope string) error {
	if scope == "" || len(s.Config.SupportedScopes) == 0 {
		return nil
	}

	supported := make(map[string]bool, len(s.Config.SupportedScopes))
	for _, sc := range s.Config.SupportedScopes {
		supported[sc] = true
	}

	for _, requested := range strings.Fields(scope) {
		if !supported[requested] {
			return fmt.Errorf("unsupported scope: %s", requested)
		}
	}
	return nil
}

// validateRegisteredURIs checks redirect URIs supplied at client
// registration: each must be an absolute URI, and plain http is only
// allowed for loopback redirects (native-app flows per RFC 8252).
func validateRegisteredURIs(redirectURIs []string) error {
	if len(redirectURIs) == 0 {
		return fmt.Errorf("at least one redirect_uri is required")
	}

	for _, raw := range redirectURIs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid redirect_uri %q: %w", raw, err)
		}
		if !u.IsAbs() {
			return fmt.Errorf("redirect_uri %q must be absolute", raw)
		}
		if u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
			return fmt.Errorf("redirect_uri %q must use https (http is allowed only for loopback)", raw)
		}
		if u.Fragment != "" {
			return fmt.Errorf("redirect_uri %q must not contain a fragment", raw)
		}
	}
	return nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
