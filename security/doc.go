// Package security provides the cryptographic and operational security
// building blocks for the OAuth core: AES-256-GCM encryption of persisted
// payloads, SHA-256 hashing of opaque values used as storage keys, PKCE
// challenge verification, audit logging with PII protection, and
// per-identifier rate limiting.
package security
