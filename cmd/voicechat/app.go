package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/constants"
	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/events"
	"geminivoice-go/internal/handlers/management"
	"geminivoice-go/internal/logging"
	tracing "geminivoice-go/internal/monitoring/tracing"
	"geminivoice-go/internal/runtime"
	"geminivoice-go/internal/server"
	"geminivoice-go/internal/session"
	"geminivoice-go/internal/storage"
	"geminivoice-go/internal/upstream"
	"geminivoice-go/internal/upstream/live"

	log "github.com/sirupsen/logrus"
)

type appOptions struct {
	ConfigPath string
	Debug      bool
	// Transport replaces the live transport in tests.
	Transport upstream.Transport
}

// app holds every long-lived service of the voice chat client.
type app struct {
	cfgMgr     *config.Manager
	feed       *logging.Broadcaster
	hub        *events.Hub
	backend    storage.Backend
	pool       *credential.Pool
	controller *session.Controller
	tasks      *runtime.TaskManager

	unfollow      func()
	traceShutdown func(context.Context) error
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfgMgr, err := config.NewManager(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfgMgr: cfgMgr, hub: events.NewHub()}
	cfg := cfgMgr.Get()
	if opts.Debug {
		cfg.Logging.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		a.shutdown()
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	a.feed = logging.NewBroadcaster(constants.LogHistoryCapacity, constants.LogStreamMaxClients)
	log.AddHook(a.feed)
	a.unfollow = a.feed.Follow(a.hub,
		events.TopicConfigUpdated, events.TopicCredentialsSynced,
		events.TopicCredentialChanged, events.TopicSessionState)
	cfgMgr.SetEventPublisher(a.hub)

	if a.traceShutdown, err = tracing.Init(ctx, cfg.Tracing.Endpoint); err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}

	a.backend = openStorage(ctx, cfg.Storage)

	a.pool = credential.NewPool(credential.Options{
		Sources:         credentialSources(cfg.Credentials),
		Store:           metadataStore(a.backend),
		Publisher:       a.hub,
		DisableRotation: cfg.Credentials.DisableRotation,
	})
	if err := a.pool.Load(ctx); err != nil {
		a.shutdown()
		if errors.Is(err, credential.ErrNoCredentials) {
			return nil, fmt.Errorf("%w: set GEMINI_API_KEY or add keys with voicectl", err)
		}
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = live.New(live.Options{Endpoint: cfg.Session.Endpoint, DialTimeout: cfg.Session.DialTimeout})
	}
	var resume *session.ResumeStore
	if a.backend != nil {
		resume = session.NewResumeStore(a.backend, cfg.Storage.ResumeTTL)
	}
	a.controller = session.New(controllerOptions(cfg.Session, a.pool, transport, resume, a.hub))

	a.tasks = runtime.NewTaskManager(ctx, cfg.Tasks.MaxConcurrent)
	if err := a.startTasks(cfg); err != nil {
		a.shutdown()
		return nil, err
	}

	cfgMgr.OnChange(a.applyConfig)
	return a, nil
}

func (a *app) startTasks(cfg *config.Config) error {
	if err := a.tasks.StartPeriodic("credential-health", "lift expired rate limits and decay errors",
		cfg.Credentials.HealthInterval, func(context.Context) error {
			if n := a.pool.HealthCheck(); n > 0 {
				log.WithField("updated", n).Info("credential health sweep")
			}
			return nil
		}); err != nil {
		return fmt.Errorf("start health sweep: %w", err)
	}
	if err := a.tasks.Start("session-watchdog", "reconnect unhealthy sessions", a.controller.RunWatchdog); err != nil {
		return fmt.Errorf("start watchdog: %w", err)
	}
	if !cfg.Admin.Enabled {
		return nil
	}
	handler := management.NewAdminAPIHandler(management.Dependencies{
		Pool:       a.pool,
		Controller: a.controller,
		Tasks:      a.tasks,
		Logs:       a.feed,
		Config:     a.cfgMgr,
		Storage:    a.backend,
	})
	engine := server.BuildAdminEngine(cfg.Admin, cfg.Logging.Debug, server.Dependencies{
		Handler:     handler,
		ValidateKey: config.AdminKeyValidator(a.cfgMgr.Get),
	})
	srv := server.New(cfg.Admin.Addr, engine)
	if err := a.tasks.Start("admin-api", "management HTTP API on "+cfg.Admin.Addr, srv.Run); err != nil {
		return fmt.Errorf("start admin API: %w", err)
	}
	return nil
}

// applyConfig reacts to hot reloads. Session and storage changes apply on restart.
func (a *app) applyConfig(cfg *config.Config) {
	if err := logging.Setup(cfg.Logging); err != nil {
		log.WithError(err).Warn("failed to apply logging config")
	}
	a.pool.SetRotationEnabled(!cfg.Credentials.DisableRotation)
}

// run connects and drives the console until in ends or ctx is canceled.
func (a *app) run(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg := a.cfgMgr.Get()
	if err := a.controller.Connect(ctx, sessionConfig(cfg.Session), cfg.Session.MaxRetries); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return newConsole(a.controller, in, out).run(ctx)
}

func (a *app) shutdown() {
	ctx := context.Background()
	if a.controller != nil {
		closeCtx, cancel := context.WithTimeout(ctx, constants.SessionCloseTimeout)
		_ = a.controller.Close(closeCtx)
		cancel()
	}
	if a.tasks != nil {
		a.tasks.StopAll()
		a.tasks.Wait()
	}
	if a.pool != nil {
		flushCtx, cancel := context.WithTimeout(ctx, constants.PersistFlushTimeout)
		if err := a.pool.Close(flushCtx); err != nil {
			log.WithError(err).Warn("final credential metadata write failed")
		}
		cancel()
	}
	if a.backend != nil {
		_ = a.backend.Close()
	}
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown tracing")
		}
	}
	if a.unfollow != nil {
		a.unfollow()
	}
	if a.feed != nil {
		a.feed.Stop()
	}
	a.cfgMgr.Close()
}
