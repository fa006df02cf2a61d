// Package commands implements the voicectl subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/logging"
	"geminivoice-go/internal/storage"
)

// Options are the global flags shared by every subcommand.
type Options struct {
	ConfigPath string
	Debug      bool
}

func (o *Options) load() (*config.Config, error) {
	path, err := config.ResolvePath(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Debug = o.Debug
	if !o.Debug {
		cfg.Logging.Level = "warn"
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// offlinePool is a pool loaded from the configured sources and storage. close writes
// any pending change before releasing the backend.
type offlinePool struct {
	*credential.Pool
	backend storage.Backend
}

func (o *Options) openPool(ctx context.Context) (*offlinePool, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(ctx, cfg.Storage.BackendOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	sources := []credential.Source{credential.NewEnvSource()}
	if cfg.Credentials.Keyring.Service != "" && len(cfg.Credentials.Keyring.Accounts) > 0 {
		sources = append(sources, credential.NewKeyringSource(cfg.Credentials.Keyring.Service, cfg.Credentials.Keyring.Accounts))
	}
	pool := credential.NewPool(credential.Options{
		Sources:         sources,
		Store:           credential.NewDocumentStore(backend),
		DisableRotation: cfg.Credentials.DisableRotation,
	})
	if err := pool.Load(ctx); err != nil && !errors.Is(err, credential.ErrNoCredentials) {
		_ = backend.Close()
		return nil, err
	}
	return &offlinePool{Pool: pool, backend: backend}, nil
}

func (p *offlinePool) close(ctx context.Context) error {
	err := p.Pool.Close(ctx)
	if cerr := p.backend.Close(); err == nil {
		err = cerr
	}
	return err
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
