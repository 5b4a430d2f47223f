// Package valkey provides a Valkey/Redis-backed implementation of the
// storage.KV contract. TTLs map directly onto SET with EX, so expiry is
// enforced by the server; prefix listing uses SCAN to avoid blocking the
// event loop on large keyspaces.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/arkadialabs/kv-oauth/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "oauth:"

	// scanBatchSize is the number of keys to fetch per SCAN iteration.
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection
	// verification.
	connectionVerifyTimeout = 5 * time.Second

	// MaxValueSize is the maximum size of a stored value (64KB).
	// This prevents memory exhaustion from oversized payloads.
	MaxValueSize = 64 * 1024
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379".
	Address string

	// Password is the optional password for Valkey authentication.
	Password string

	// DB is the optional database number (default 0).
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:").
	// It namespaces this server's records within a shared Valkey and is
	// invisible to callers: List results come back without it.
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections.
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.KV.
//
// DEL is atomic in Valkey and reports the number of keys it removed, so
// the authorization-code single-use invariant holds strictly: of two
// concurrent deletes for the same key, exactly one observes a removal.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ storage.KV = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// Get returns the value stored at key, or storage.ErrNotFound.
// Expiry is handled by Valkey; an expired key is simply absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+key).Build()).AsBytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return data, nil
}

// Put stores value at key. A ttl > 0 maps onto SET with EX.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > MaxValueSize {
		return fmt.Errorf("value for key exceeds maximum size of %d bytes", MaxValueSize)
	}

	var err error
	if ttl > 0 {
		err = s.client.Do(ctx, s.client.B().Set().Key(s.prefix+key).Value(string(value)).Ex(ttl).Build()).Error()
	} else {
		err = s.client.Do(ctx, s.client.B().Set().Key(s.prefix+key).Value(string(value)).Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	return nil
}

// Delete removes the key and reports whether it existed. DEL is atomic and
// returns the number of keys removed, so of two concurrent deletes exactly
// one observes true.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	removed, err := s.client.Do(ctx, s.client.B().Del().Key(s.prefix+key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return removed > 0, nil
}

// List returns all keys beginning with prefix, with the store's key prefix
// stripped. Uses SCAN so large keyspaces never block the server.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.prefix + prefix + "*"

	seen := make(map[string]bool)
	var keys []string
	var cursor uint64

	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, key := range result.Elements {
			// SCAN can return duplicates across iterations
			if seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// isNilError checks if the error indicates a nil/not-found result from
// Valkey. Uses the valkey-go library's built-in nil detection.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
