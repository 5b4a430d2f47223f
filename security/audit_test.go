package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditor_Disabled(t *testing.T) {
	auditor, buf := newCapturedAuditor(false)

	auditor.LogGrantCreated("user-1", "client-1", "grant-1", "read")
	auditor.LogAuthFailure("user-1", "client-1", "bad_secret")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditor_HashesUserID(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogTokenIssued("sensitive-user-id", "client-1", "grant-1", "read")

	out := buf.String()
	if strings.Contains(out, "sensitive-user-id") {
		t.Error("audit log contains raw user ID")
	}
	if !strings.Contains(out, hashForLogging("sensitive-user-id")) {
		t.Error("audit log missing hashed user ID")
	}
	if !strings.Contains(out, "token_issued") {
		t.Error("audit log missing event type")
	}
}

func TestAuditor_EventTypes(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *Auditor)
		eventType string
	}{
		{
			name:      "grant created",
			log:       func(a *Auditor) { a.LogGrantCreated("u", "c", "g", "read") },
			eventType: "grant_created",
		},
		{
			name:      "token refreshed",
			log:       func(a *Auditor) { a.LogTokenRefreshed("u", "c", "g", true) },
			eventType: "token_refreshed",
		},
		{
			name:      "grant revoked",
			log:       func(a *Auditor) { a.LogGrantRevoked("u", "c", "g", 3) },
			eventType: "grant_revoked",
		},
		{
			name:      "auth failure",
			log:       func(a *Auditor) { a.LogAuthFailure("u", "c", "pkce_verification_failed") },
			eventType: "auth_failure",
		},
		{
			name:      "code replay",
			log:       func(a *Auditor) { a.LogCodeReplay("c") },
			eventType: "code_replay",
		},
		{
			name:      "client registered",
			log:       func(a *Auditor) { a.LogClientRegistered("c", "public") },
			eventType: "client_registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newCapturedAuditor(true)
			tt.log(auditor)
			if !strings.Contains(buf.String(), tt.eventType) {
				t.Errorf("audit log missing event type %q: %s", tt.eventType, buf.String())
			}
		})
	}
}
