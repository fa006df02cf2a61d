package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const reloadDebounce = 100 * time.Millisecond

func (m *Manager) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		m.startPollingWatcher()
		return
	}

	// Watch the directory so editors that replace the file by rename are seen too.
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("failed to watch config directory, falling back to polling")
		watcher.Close()
		m.startPollingWatcher()
		return
	}
	log.WithField("path", m.path).Debug("config watcher started using fsnotify")

	target := filepath.Clean(m.path)
	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, m.checkAndReload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("file watcher error")
			case <-m.stopCh:
				if debounce != nil {
					debounce.Stop()
				}
				return
			}
		}
	}()
}

// startPollingWatcher is a fallback when fsnotify is not available
func (m *Manager) startPollingWatcher() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkAndReload()
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *Manager) checkAndReload() {
	m.mu.RLock()
	last := m.lastMod
	m.mu.RUnlock()
	if !modTime(m.path).After(last) {
		return
	}
	if err := m.Reload(); err != nil {
		log.WithError(err).WithField("path", m.path).Warn("failed to reload config, keeping previous")
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// changedSections lists top-level sections whose values differ.
func changedSections(old, next *Config) []string {
	if old == nil || next == nil {
		return nil
	}
	ov, nv := reflect.ValueOf(*old), reflect.ValueOf(*next)
	t := ov.Type()
	var out []string
	for i := 0; i < t.NumField(); i++ {
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			out = append(out, t.Field(i).Tag.Get("yaml"))
		}
	}
	return out
}

func logConfigChanges(old, next *Config) {
	for _, section := range changedSections(old, next) {
		log.WithField("section", section).Info("config changed")
	}
}
