package server

import "github.com/arkadialabs/kv-oauth/security"

// Storage key construction. Opaque secrets (authorization codes, access
// token IDs, refresh tokens) never appear in the keyspace directly; they
// are keyed by SHA-256 digest. Record keys embed userID and grantID so
// revocation can fan out with a single prefix scan.

func grantKey(userID, grantID string) string {
	return "grant:" + userID + ":" + grantID
}

func codeIndexKey(code string) string {
	return "code:" + security.Digest(code)
}

func clientKey(clientID string) string {
	return "client:" + clientID
}

func tokenKey(userID, grantID, tokenID string) string {
	return "token:" + userID + ":" + grantID + ":" + security.Digest(tokenID)
}

func tokenPrefix(userID, grantID string) string {
	return "token:" + userID + ":" + grantID + ":"
}

func refreshIndexKey(refreshToken string) string {
	return "refresh:" + security.Digest(refreshToken)
}

func refreshRecordKey(userID, grantID, refreshToken string) string {
	return "refreshrec:" + userID + ":" + grantID + ":" + security.Digest(refreshToken)
}

func refreshRecordPrefix(userID, grantID string) string {
	return "refreshrec:" + userID + ":" + grantID + ":"
}
