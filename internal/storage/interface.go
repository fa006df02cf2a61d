package storage

import (
	"context"
	"errors"
)

// Backend stores opaque JSON documents by key. The credential pool keeps its metadata
// document here and the session layer keeps its resumption handle.
type Backend interface {
	// Name identifies the backend in logs and metrics ("file", "redis", ...).
	Name() string

	// Initialize sets up the storage backend
	Initialize(ctx context.Context) error

	// Close closes the storage backend
	Close() error

	// Health checks if the storage backend is reachable
	Health(ctx context.Context) error

	// GetDocument returns *ErrNotFound when key has never been written.
	GetDocument(ctx context.Context, key string) ([]byte, error)
	PutDocument(ctx context.Context, key string, data []byte) error
	DeleteDocument(ctx context.Context, key string) error
}

// ErrNotFound is returned when a key is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsNotFound reports whether err (or anything it wraps) is *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
