// Package oauth provides an embeddable OAuth 2.1 authorization server core
// backed by a TTL-capable key-value store. It issues opaque access tokens
// through the authorization code flow with PKCE, validates them against
// storage (so revocation is immediate), and exposes the standard token,
// discovery, revocation, and registration endpoints over net/http.
//
// The package is transport-thin by design: the host application owns user
// authentication and the approval UI, then calls CompleteAuthorization to
// mint a code. Everything downstream of the code is handled here.
package oauth
