package main

import (
	"context"
	"strings"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/constants"
	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/events"
	"geminivoice-go/internal/session"
	"geminivoice-go/internal/storage"
	"geminivoice-go/internal/upstream"

	log "github.com/sirupsen/logrus"
)

// openStorage opens the configured backend, falling back to the file backend and
// finally to no persistence. Env and keychain credentials still work without it.
func openStorage(ctx context.Context, cfg config.StorageConfig) storage.Backend {
	initCtx, cancel := context.WithTimeout(ctx, constants.StorageInitTimeout)
	defer cancel()
	backend, err := storage.Open(initCtx, cfg.BackendOptions())
	if err == nil {
		return backend
	}
	// 存储后端初始化失败时降级为文件后端
	log.WithError(err).WithField("backend", cfg.Backend).Warn("storage backend unavailable, falling back to file")
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "file") || cfg.Backend == "" {
		log.Warn("running without persistent storage")
		return nil
	}
	fallback := cfg.BackendOptions()
	fallback.Backend = "file"
	backend, err = storage.Open(initCtx, fallback)
	if err != nil {
		log.WithError(err).Error("file backend fallback failed; running without persistent storage")
		return nil
	}
	return backend
}

func metadataStore(backend storage.Backend) credential.MetadataStore {
	if backend == nil {
		return nil
	}
	return credential.NewDocumentStore(backend)
}

func credentialSources(cfg config.CredentialsConfig) []credential.Source {
	sources := []credential.Source{credential.NewEnvSource()}
	if cfg.Keyring.Service != "" && len(cfg.Keyring.Accounts) > 0 {
		sources = append(sources, credential.NewKeyringSource(cfg.Keyring.Service, cfg.Keyring.Accounts))
	}
	return sources
}

func sessionConfig(cfg config.SessionConfig) upstream.SessionConfig {
	return upstream.SessionConfig{
		Model:               cfg.Model,
		VoiceName:           cfg.Voice,
		SystemInstruction:   cfg.SystemInstruction,
		ResponseModalities:  append([]string(nil), cfg.ResponseModalities...),
		InputTranscription:  cfg.InputTranscription,
		OutputTranscription: cfg.OutputTranscription,
	}
}

func controllerOptions(cfg config.SessionConfig, pool session.Pool, transport upstream.Transport, resume *session.ResumeStore, pub events.Publisher) session.Options {
	return session.Options{
		Pool:                  pool,
		Transport:             transport,
		Resume:                resume,
		Publisher:             pub,
		MaxRetries:            cfg.MaxRetries,
		BaseBackoff:           cfg.BaseBackoff,
		MaxBackoff:            cfg.MaxBackoff,
		RotationCooldown:      cfg.RotationCooldown,
		MaxConsecutiveErrors:  cfg.MaxConsecutiveErrors,
		ActivityCheckInterval: cfg.ActivityCheckInterval,
	}
}
