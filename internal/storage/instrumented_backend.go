package storage

import (
	"context"
	"time"

	"geminivoice-go/internal/monitoring"
	"geminivoice-go/internal/monitoring/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// WithInstrumentation wraps a backend with tracing spans and latency metrics.
func WithInstrumentation(inner Backend) Backend {
	if inner == nil {
		return nil
	}
	if _, ok := inner.(*instrumentedBackend); ok {
		return inner
	}
	return &instrumentedBackend{Backend: inner}
}

type instrumentedBackend struct {
	Backend
}

func (i *instrumentedBackend) GetDocument(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := i.instrument(ctx, "get", func(ctx context.Context) error {
		var innerErr error
		data, innerErr = i.Backend.GetDocument(ctx, key)
		return innerErr
	})
	return data, err
}

func (i *instrumentedBackend) PutDocument(ctx context.Context, key string, data []byte) error {
	return i.instrument(ctx, "put", func(ctx context.Context) error {
		return i.Backend.PutDocument(ctx, key, data)
	})
}

func (i *instrumentedBackend) DeleteDocument(ctx context.Context, key string) error {
	return i.instrument(ctx, "delete", func(ctx context.Context) error {
		return i.Backend.DeleteDocument(ctx, key)
	})
}

func (i *instrumentedBackend) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	label := i.Backend.Name()
	ctx, span := tracing.StartSpan(ctx, "storage", label+"/"+operation)
	span.SetAttributes(
		attribute.String("storage.backend", label),
		attribute.String("storage.operation", operation),
	)
	start := time.Now()
	err := fn(ctx)
	// a missing document is a normal outcome, not a failure
	if IsNotFound(err) {
		tracing.EndSpan(span, nil)
		monitoring.RecordStorageOperation(label, operation, time.Since(start), nil)
		return err
	}
	tracing.EndSpan(span, err)
	monitoring.RecordStorageOperation(label, operation, time.Since(start), err)
	return err
}
