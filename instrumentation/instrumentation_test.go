package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arkadialabs/kv-oauth/storage"
	"github.com/arkadialabs/kv-oauth/storage/memory"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Metrics() == nil {
		t.Error("Metrics() = nil")
	}
	if inst.Meter("server") == nil {
		t.Error("Meter() = nil")
	}
	if inst.Tracer("server") == nil {
		t.Error("Tracer() = nil")
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_DisabledUsesNoop(t *testing.T) {
	inst, err := New(Config{Enabled: false, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording against no-op providers must not panic.
	ctx := context.Background()
	m := inst.Metrics()
	m.RecordGrantCreated(ctx, "client-1")
	m.RecordCodeExchanged(ctx, "client-1", 5*time.Millisecond)
	m.RecordTokenValidated(ctx, "client-1")
	m.RecordTokenRefreshed(ctx, "client-1", true)
	m.RecordGrantRevoked(ctx, 3)
	m.RecordClientRegistered(ctx, "confidential")
	m.RecordPKCEFailure(ctx, "client-1")
	m.RecordCodeReplay(ctx, "client-1")
	m.RecordStorageOperation(ctx, "get", time.Millisecond, nil)
	m.RecordStorageOperation(ctx, "put", time.Millisecond, errors.New("boom"))
}

func TestNilSpanHelpers(t *testing.T) {
	// All span helpers must tolerate a nil span.
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanAttributes(nil)
	AddOAuthFlowAttributes(nil, "client-1", "user-1", "read")
	AddStorageAttributes(nil, "get", "memory")
}

func TestWrapKV(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	inner := memory.New()
	t.Cleanup(inner.Stop)

	kv := WrapKV(inner, "memory", inst)
	ctx := context.Background()

	if err := kv.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want v", got)
	}

	keys, err := kv.List(ctx, "k")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("List() = %v, want one key", keys)
	}

	deleted, err := kv.Delete(ctx, "k")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false through the decorator, want true")
	}

	// Not-found reads pass through unchanged.
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}
