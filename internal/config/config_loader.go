package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths are tried in order when no path is given.
func DefaultSearchPaths() []string {
	paths := []string{"geminivoice.yaml", "geminivoice.yml", "config.yaml", "config.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".geminivoice", "config.yaml"))
	}
	return append(paths, "/etc/geminivoice/config.yaml")
}

// ResolvePath expands "~" and, when path is empty, picks the first existing default
// location. It returns "" if nothing is found.
func ResolvePath(path string) (string, error) {
	if path == "" {
		for _, loc := range DefaultSearchPaths() {
			if _, err := os.Stat(loc); err == nil {
				return loc, nil
			}
		}
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return path, nil
}

// Load reads path (YAML, or JSON which YAML accepts), fills defaults, applies
// environment overrides and validates. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		log.WithField("path", path).Info("configuration loaded")
	}
	cfg.fillZeroes()
	cfg.applyEnv()
	if err := cfg.Validate().Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}
