package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arkadialabs/kv-oauth/instrumentation"
	"github.com/arkadialabs/kv-oauth/server"
)

const tokenTypeBearer = "Bearer"

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		logger: logger,
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// RegisterRoutes registers the OAuth endpoints on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.ServeMetadata)
	mux.HandleFunc("/oauth/token", h.ServeToken)
	mux.HandleFunc("/oauth/revoke", h.ServeRevocation)
	mux.HandleFunc("/oauth/register", h.ServeRegistration)
}

// ServeMetadata handles the RFC 8414 discovery endpoint
func (h *Handler) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := h.server.Server.Config.Issuer

	metadata := AuthorizationServerMetadata{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/oauth/authorize",
		TokenEndpoint:         issuer + "/oauth/token",
		RevocationEndpoint:    issuer + "/oauth/revoke",
		ScopesSupported:       h.server.Server.Config.SupportedScopes,
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
		},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic",
			"client_secret_post",
			"none",
		},
		CodeChallengeMethodsSupported: h.codeChallengeMethods(),
	}

	if h.registrationAvailable() {
		metadata.RegistrationEndpoint = issuer + "/oauth/register"
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, metadata)
}

func (h *Handler) codeChallengeMethods() []string {
	if h.server.config.DisallowPlainPKCE {
		return []string{"S256"}
	}
	return []string{"plain", "S256"}
}

func (h *Handler) registrationAvailable() bool {
	return h.server.config.RegistrationAccessToken != "" ||
		h.server.config.AllowPublicClientRegistration
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	grantType := r.FormValue("grant_type")

	switch grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		h.handleRefreshTokenGrant(w, r)
	default:
		h.writeError(w, ErrorCodeUnsupportedGrantType, "Grant type "+grantType+" not supported", http.StatusBadRequest)
	}
}

func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token_exchange")
		defer span.End()
	}

	code := r.FormValue("code")
	codeVerifier := r.FormValue("code_verifier")

	if code == "" {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, ErrorCodeInvalidRequest))
		h.writeError(w, ErrorCodeInvalidRequest, "Required parameter 'code' missing", http.StatusBadRequest)
		return
	}

	client, err := h.authenticateClient(ctx, r)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.writeOAuthError(w, oauthErrorFrom(err))
		return
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrClientType, client.ClientType),
	)

	token, err := h.server.ExchangeCode(ctx, code, client.ClientID, codeVerifier)
	if err != nil {
		h.logger.Warn("Code exchange failed", "client_id", client.ClientID, "error", err)
		instrumentation.RecordError(span, err)
		// Internal detail stays server-side; the client sees the code only.
		oauthErr := oauthErrorFrom(err)
		if oauthErr.Code == ErrorCodeServerError {
			h.writeOAuthError(w, oauthErr)
			return
		}
		h.writeError(w, ErrorCodeInvalidGrant, "Authorization code is invalid or expired", http.StatusBadRequest)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.writeTokenResponse(w, token)
}

func (h *Handler) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token_refresh")
		defer span.End()
	}

	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		h.writeError(w, ErrorCodeInvalidRequest, "refresh_token is required", http.StatusBadRequest)
		return
	}

	client, err := h.authenticateClient(ctx, r)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.writeOAuthError(w, oauthErrorFrom(err))
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, client.ClientID))

	token, err := h.server.RefreshAccessToken(ctx, refreshToken, client.ClientID)
	if err != nil {
		h.logger.Warn("Token refresh failed", "client_id", client.ClientID, "error", err)
		instrumentation.RecordError(span, err)
		oauthErr := oauthErrorFrom(err)
		if oauthErr.Code == ErrorCodeServerError {
			h.writeOAuthError(w, oauthErr)
			return
		}
		h.writeError(w, ErrorCodeInvalidGrant, "Refresh token is invalid or expired", http.StatusBadRequest)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.writeTokenResponse(w, token)
}

// authenticateClient authenticates the client on a token request. Basic
// auth takes precedence over form credentials. Public clients authenticate
// by identity only; their proof is the PKCE verifier checked downstream.
func (h *Handler) authenticateClient(ctx context.Context, r *http.Request) (*server.Client, error) {
	clientID, clientSecret, ok := r.BasicAuth()
	if ok {
		// RFC 6749 section 2.3.1: credentials are form-urlencoded inside
		// the Basic header.
		if id, err := url.QueryUnescape(clientID); err == nil {
			clientID = id
		}
		if secret, err := url.QueryUnescape(clientSecret); err == nil {
			clientSecret = secret
		}
	} else {
		clientID = r.FormValue("client_id")
		clientSecret = r.FormValue("client_secret")
	}

	if clientID == "" {
		return nil, ErrInvalidClient("client authentication required")
	}

	client, err := h.server.ValidateClientCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ServeRevocation handles the RFC 7009 token revocation endpoint.
// Revoking either token kind kills the whole grant. Unknown tokens still
// return 200 so callers cannot probe the token space.
func (h *Handler) ServeRevocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token_revocation")
		defer span.End()
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	token := r.FormValue("token")
	if token == "" {
		h.writeError(w, ErrorCodeInvalidRequest, "token is required", http.StatusBadRequest)
		return
	}

	if err := h.server.RevokeToken(ctx, token); err != nil {
		h.logger.Error("Token revocation failed", "error", err)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrorCodeServerError, "Revocation failed", http.StatusInternalServerError)
		return
	}

	instrumentation.SetSpanSuccess(span)
	w.WriteHeader(http.StatusOK)
}

// ServeRegistration handles RFC 7591 dynamic client registration. The
// endpoint is gated by the registration access token unless public
// registration is explicitly enabled; either way it is rate limited per IP.
func (h *Handler) ServeRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.registrationAvailable() {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	clientIP := requestIP(r)
	if h.server.RegistrationRateLimiter != nil && !h.server.RegistrationRateLimiter.Allow(clientIP) {
		h.logger.Warn("Client registration rate limit exceeded", "ip", clientIP)
		h.writeError(w, ErrorCodeRateLimitExceeded, "Registration rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		return
	}

	if !h.server.config.AllowPublicClientRegistration {
		if !h.validateRegistrationToken(r.Header.Get("Authorization")) {
			h.writeError(w, ErrorCodeInvalidToken, "Registration requires a valid registration access token", http.StatusUnauthorized)
			return
		}
	}

	var req ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.ClientType == "" {
		req.ClientType = server.ClientTypeConfidential
	}

	client, secret, err := h.server.RegisterClient(ctx, req.ClientName, req.ClientType, req.RedirectURIs)
	if err != nil {
		h.writeOAuthError(w, oauthErrorFrom(err))
		return
	}

	h.writeJSON(w, http.StatusCreated, ClientRegistrationResponse{
		ClientID:     client.ClientID,
		ClientSecret: secret,
		ClientName:   client.ClientName,
		ClientType:   client.ClientType,
		RedirectURIs: client.RedirectURIs,
	})
}

// validateRegistrationToken checks the bearer token against the configured
// registration access token in constant time.
func (h *Handler) validateRegistrationToken(authHeader string) bool {
	if authHeader == "" || h.server.config.RegistrationAccessToken == "" {
		return false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.server.config.RegistrationAccessToken)) == 1
}

// ParseAuthorizationRequest validates the query parameters of an
// authorization request against the registered client. The host
// application calls this before showing its approval UI, then completes or
// denies the request.
func (h *Handler) ParseAuthorizationRequest(r *http.Request) (*AuthorizationRequest, error) {
	q := r.URL.Query()

	if rt := q.Get("response_type"); rt != "code" {
		return nil, ErrInvalidRequest("response_type must be 'code'")
	}

	clientID := q.Get("client_id")
	if clientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := h.server.GetClient(r.Context(), clientID)
	if err != nil {
		return nil, oauthErrorFrom(err)
	}

	redirectURI := q.Get("redirect_uri")
	if err := h.server.ValidateRedirectURI(client, redirectURI); err != nil {
		// Never redirect to an unregistered URI, even to report the error.
		return nil, ErrInvalidRedirectURI(err.Error())
	}

	return &AuthorizationRequest{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}, nil
}

// CompleteAuthorization mints a grant for the approved request and
// redirects the user agent back to the client with the authorization code.
func (h *Handler) CompleteAuthorization(w http.ResponseWriter, r *http.Request, req *AuthorizationRequest, userID string) {
	grant, err := h.server.CreateGrant(r.Context(), userID, req.ClientID, req.Scope, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		h.logger.Warn("Failed to create grant", "client_id", req.ClientID, "error", err)
		h.writeOAuthError(w, oauthErrorFrom(err))
		return
	}

	h.redirectBack(w, r, req, url.Values{
		"code":  {grant.Code},
		"state": {req.State},
	})
}

// DenyAuthorization redirects the user agent back to the client with an
// access_denied error.
func (h *Handler) DenyAuthorization(w http.ResponseWriter, r *http.Request, req *AuthorizationRequest) {
	h.redirectBack(w, r, req, url.Values{
		"error": {ErrorCodeAccessDenied},
		"state": {req.State},
	})
}

func (h *Handler) redirectBack(w http.ResponseWriter, r *http.Request, req *AuthorizationRequest, params url.Values) {
	if req.State == "" {
		params.Del("state")
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Invalid redirect URI", http.StatusBadRequest)
		return
	}

	q := target.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

type contextKey string

const userPropsKey contextKey = "oauth_user_props"

// UserFromContext returns the identity attached by RequireAuth, or nil.
func UserFromContext(ctx context.Context) *server.UserProps {
	props, _ := ctx.Value(userPropsKey).(*server.UserProps)
	return props
}

// RequireAuth is middleware that validates the bearer token and attaches
// the resolved identity to the request context. Missing, malformed,
// expired, and revoked tokens all produce the same 401; storage failures
// also fail closed.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.unauthorized(w)
			return
		}

		props, err := h.server.ValidateToken(r.Context(), token)
		if err != nil {
			h.logger.Error("Token validation failed", "error", err)
			h.unauthorized(w)
			return
		}
		if props == nil {
			h.unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userPropsKey, props)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (h *Handler) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	h.writeError(w, ErrorCodeInvalidToken, "The access token is invalid or expired", http.StatusUnauthorized)
}

// requestIP extracts the remote IP for rate limiting. Deployments behind a
// proxy should rate limit at the proxy; RemoteAddr is the only value this
// server trusts.
func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *server.IssuedToken) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    token.ExpiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	})
}

func (h *Handler) writeOAuthError(w http.ResponseWriter, oauthErr *OAuthError) {
	h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
