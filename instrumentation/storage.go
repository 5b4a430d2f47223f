package instrumentation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arkadialabs/kv-oauth/storage"
)

// InstrumentedKV wraps a storage.KV with per-operation metrics and spans.
// Wrap the backend before handing it to the server:
//
//	kv := instrumentation.WrapKV(valkeyStore, "valkey", inst)
type InstrumentedKV struct {
	inner   storage.KV
	backend string
	metrics *Metrics
	tracer  trace.Tracer
}

var _ storage.KV = (*InstrumentedKV)(nil)

// WrapKV decorates kv with instrumentation. The backend name appears as a
// span and metric attribute ("memory", "valkey").
func WrapKV(kv storage.KV, backend string, inst *Instrumentation) *InstrumentedKV {
	return &InstrumentedKV{
		inner:   kv,
		backend: backend,
		metrics: inst.Metrics(),
		tracer:  inst.Tracer("storage"),
	}
}

func (i *InstrumentedKV) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := i.tracer.Start(ctx, "storage."+op)
	AddStorageAttributes(span, op, i.backend)

	return ctx, func(err error) {
		// A not-found read is an expected outcome, not a backend failure.
		if errors.Is(err, storage.ErrNotFound) {
			err = nil
		}
		i.metrics.RecordStorageOperation(ctx, op, time.Since(start), err)
		if err != nil {
			RecordError(span, err)
		} else {
			SetSpanSuccess(span)
		}
		span.End()
	}
}

func (i *InstrumentedKV) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, done := i.observe(ctx, "get")
	data, err := i.inner.Get(ctx, key)
	done(err)
	return data, err
}

func (i *InstrumentedKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, done := i.observe(ctx, "put")
	err := i.inner.Put(ctx, key, value, ttl)
	done(err)
	return err
}

func (i *InstrumentedKV) Delete(ctx context.Context, key string) (bool, error) {
	ctx, done := i.observe(ctx, "delete")
	deleted, err := i.inner.Delete(ctx, key)
	done(err)
	return deleted, err
}

func (i *InstrumentedKV) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, done := i.observe(ctx, "list")
	keys, err := i.inner.List(ctx, prefix)
	done(err)
	return keys, err
}
