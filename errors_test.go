package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestOAuthError_Error(t *testing.T) {
	err := ErrInvalidGrant("code expired")
	if got, want := err.Error(), "invalid_grant: code expired"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestOAuthErrorFrom(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{
			name:       "prefixed invalid_grant",
			err:        fmt.Errorf("invalid_grant: authorization code has expired"),
			wantCode:   ErrorCodeInvalidGrant,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "prefixed invalid_client",
			err:        fmt.Errorf("invalid_client: unknown client"),
			wantCode:   ErrorCodeInvalidClient,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrapped prefixed error",
			err:        fmt.Errorf("invalid_scope: scope %q is not supported", "admin"),
			wantCode:   ErrorCodeInvalidScope,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unrecognized prefix",
			err:        errors.New("storage: connection refused"),
			wantCode:   ErrorCodeServerError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "no prefix at all",
			err:        errors.New("boom"),
			wantCode:   ErrorCodeServerError,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := oauthErrorFrom(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestOAuthErrorFrom_PassThrough(t *testing.T) {
	orig := ErrInvalidToken("expired")
	if got := oauthErrorFrom(orig); got != orig {
		t.Errorf("oauthErrorFrom() = %v, want the original error", got)
	}
}

func TestOAuthErrorFrom_Nil(t *testing.T) {
	if got := oauthErrorFrom(nil); got != nil {
		t.Errorf("oauthErrorFrom(nil) = %v, want nil", got)
	}
}

func TestOAuthErrorFrom_NeverLeaksInternalDetail(t *testing.T) {
	err := errors.New("failed to store grant: dial tcp 10.0.0.5:6379: i/o timeout")
	got := oauthErrorFrom(err)
	if got.Code != ErrorCodeServerError {
		t.Fatalf("Code = %q, want server_error", got.Code)
	}
	if got.Description == err.Error() {
		t.Error("internal error detail leaked into the client-facing description")
	}
}
