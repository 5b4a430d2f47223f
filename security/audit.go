package security

import (
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
// User identifiers are hashed before they reach the log stream.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	GrantID   string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"grant_id", event.GrantID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogGrantCreated logs when an authorization grant is created
func (a *Auditor) LogGrantCreated(userID, clientID, grantID, scope string) {
	a.LogEvent(Event{
		Type:     "grant_created",
		UserID:   userID,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenIssued logs when an authorization code is exchanged for tokens
func (a *Auditor) LogTokenIssued(userID, clientID, grantID, scope string) {
	a.LogEvent(Event{
		Type:     "token_issued",
		UserID:   userID,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs when an access token is refreshed
func (a *Auditor) LogTokenRefreshed(userID, clientID, grantID string, rotated bool) {
	a.LogEvent(Event{
		Type:     "token_refreshed",
		UserID:   userID,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogGrantRevoked logs when a grant and its derived tokens are revoked
func (a *Auditor) LogGrantRevoked(userID, clientID, grantID string, tokensDeleted int) {
	a.LogEvent(Event{
		Type:     "grant_revoked",
		UserID:   userID,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"tokens_deleted": tokensDeleted,
		},
	})
}

// LogAuthFailure logs an authentication or exchange failure
func (a *Auditor) LogAuthFailure(userID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     "auth_failure",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeReplay logs a replayed authorization code. Replay is a strong
// signal of code interception and warrants alerting.
func (a *Auditor) LogCodeReplay(clientID string) {
	a.LogEvent(Event{
		Type:     "code_replay",
		ClientID: clientID,
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(identifier string) {
	a.LogEvent(Event{
		Type:   "rate_limit_exceeded",
		UserID: identifier,
	})
}

// LogClientRegistered logs when a new client is registered
func (a *Auditor) LogClientRegistered(clientID, clientType string) {
	a.LogEvent(Event{
		Type:     "client_registered",
		ClientID: clientID,
		Details: map[string]any{
			"client_type": clientType,
		},
	})
}
