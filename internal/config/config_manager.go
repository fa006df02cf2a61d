package config

import (
	"context"
	"sync"
	"time"

	"geminivoice-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// Manager holds the live configuration and reloads it when the file changes.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	path      string
	lastMod   time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	onChange  []func(*Config)
	publisher events.Publisher
}

// NewManager loads the configuration at path (see ResolvePath) and, when a file was
// found, starts watching it.
func NewManager(path string) (*Manager, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(resolved)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		log.Warn("using default configuration (no config file found)")
	}

	m := &Manager{config: cfg, path: resolved, stopCh: make(chan struct{})}
	if resolved != "" {
		m.lastMod = modTime(resolved)
		m.startWatcher()
	}
	return m, nil
}

// Path is the file backing this manager, or "".
func (m *Manager) Path() string { return m.path }

// OnChange registers a callback for configuration changes
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// SetEventPublisher wires the event hub used to broadcast config updates.
func (m *Manager) SetEventPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Close stops the watcher.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Reload re-reads the file. An invalid file leaves the current config in place.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	next, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	prev := m.config
	m.config = next
	m.lastMod = modTime(m.path)
	m.mu.Unlock()

	logConfigChanges(prev, next)
	m.emitChange(prev, next)
	return nil
}

func (m *Manager) listenersSnapshot() ([]func(*Config), events.Publisher) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	callbacks := make([]func(*Config), len(m.onChange))
	copy(callbacks, m.onChange)
	return callbacks, m.publisher
}

func (m *Manager) emitChange(oldCfg, newCfg *Config) {
	callbacks, publisher := m.listenersSnapshot()
	for _, fn := range callbacks {
		cp := *newCfg
		fn(&cp)
	}
	if publisher != nil {
		publisher.Publish(context.Background(), events.TopicConfigUpdated, ChangeEvent{
			Path:      m.path,
			UpdatedAt: time.Now().UTC(),
			Changed:   changedSections(oldCfg, newCfg),
		}, nil)
	}
}

// ChangeEvent is the payload broadcast when configuration changes. It names the
// sections that differ and never carries values, since some are secrets.
type ChangeEvent struct {
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
	Changed   []string  `json:"changed"`
}
