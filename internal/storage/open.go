package storage

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string // file | redis | mongodb | postgres
	BaseDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
}

// Open builds, initializes and instruments the configured backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	kind := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch kind {
	case "", "file":
		backend = NewFileBackend(opts.BaseDir)
	case "redis":
		backend, err = NewRedisBackend(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	case "mongodb", "mongo":
		backend, err = NewMongoDBBackend(opts.MongoURI, opts.MongoDatabase)
	case "postgres", "postgresql":
		backend, err = NewPostgresBackend(opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("initialize %s storage: %w", backend.Name(), err)
	}
	log.WithField("backend", backend.Name()).Info("storage backend ready")
	return WithInstrumentation(backend), nil
}
