// Package storage defines the key-value contract used to persist OAuth
// grants, tokens, and clients. It supports various backend implementations
// including in-memory (for tests and single-instance deployments) and
// Valkey/Redis for production.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key does not exist or its TTL has elapsed.
// Callers must treat expired and absent keys identically.
var ErrNotFound = errors.New("storage: key not found")

// KV is the storage adapter contract. All keys are namespaced strings
// ("grant:{userID}:{grantID}", "code:{digest}", ...). Implementations hold
// no OAuth logic; they are a pure I/O boundary.
//
// TTL semantics: a value stored with ttl > 0 must become unreadable once the
// TTL elapses. Backends without a native TTL engine must emulate it with an
// expiry timestamp checked on every read, never relied upon passively.
//
// Concurrency: a single Get, Put, or Delete is atomic per key; there are no
// cross-key transactions. The authorization-code single-use guarantee relies
// on Delete being atomic and reporting whether it removed the key: of two
// concurrent deletes for the same key, exactly one observes true. Backends
// that cannot guarantee this degrade the single-use invariant to
// best-effort and must document it.
//
// All methods accept context.Context; callers bound every storage call with
// a timeout and fail closed when it fires.
type KV interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key. A ttl > 0 bounds the record's lifetime;
	// ttl <= 0 stores without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key and reports whether it existed. Deleting an
	// absent key is not an error; it returns (false, nil).
	Delete(ctx context.Context, key string) (bool, error)

	// List returns all live keys beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON fetches key and unmarshals its value into T.
// Returns ErrNotFound unchanged so callers can branch on it.
func GetJSON[T any](ctx context.Context, kv KV, key string) (*T, error) {
	data, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return &v, nil
}

// PutJSON marshals v and stores it at key with the given TTL.
func PutJSON(ctx context.Context, kv KV, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return kv.Put(ctx, key, data, ttl)
}
