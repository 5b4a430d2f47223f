package valkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/arkadialabs/kv-oauth/storage"
)

// testStore creates a test store connected to a local Valkey instance.
// Tests are skipped if VALKEY_TEST_ADDR is not set and localhost:6379 is
// unreachable. Each test gets a unique prefix for isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("kvoauthtest:%s:", t.Name())

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all keys under the store's prefix.
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	keys, err := s.List(ctx, "")
	if err != nil {
		t.Logf("Warning: failed to list keys for cleanup: %v", err)
		return
	}
	for _, key := range keys {
		_, _ = s.Delete(ctx, key)
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without address expected error")
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "grant:u1:g1", []byte("payload"), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "grant:u1:g1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %q, want %q", got, "payload")
	}

	deleted, err := s.Delete(ctx, "grant:u1:g1")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false for existing key, want true")
	}
	if _, err := s.Get(ctx, "grant:u1:g1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	deleted, err = s.Delete(ctx, "grant:u1:g1")
	if err != nil {
		t.Fatalf("Delete() of absent key error = %v", err)
	}
	if deleted {
		t.Error("Delete() = true for absent key, want false")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_TTL(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "code:abc", []byte("v"), time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Get(ctx, "code:abc"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := s.Get(ctx, "code:abc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, k := range []string{"token:u1:g1:a", "token:u1:g1:b", "token:u1:g2:c"} {
		if err := s.Put(ctx, k, []byte("v"), 0); err != nil {
			t.Fatalf("Put(%q) error = %v", k, err)
		}
	}

	keys, err := s.List(ctx, "token:u1:g1:")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List() returned %d keys, want 2: %v", len(keys), keys)
	}
	for _, k := range keys {
		if k != "token:u1:g1:a" && k != "token:u1:g1:b" {
			t.Errorf("List() returned unexpected key %q", k)
		}
	}
}

func TestStore_MaxValueSize(t *testing.T) {
	s := testStore(t)

	oversized := make([]byte, MaxValueSize+1)
	if err := s.Put(context.Background(), "big", oversized, 0); err == nil {
		t.Error("Put() with oversized value expected error")
	}
}
