package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s=%s]: %s", e.Field, e.Value, e.Message)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
	r.Valid = false
}

// AddWarning adds a validation warning
func (r *ValidationResult) AddWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

// Err joins all errors, or returns nil when the config is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

var (
	validBackends   = []string{"file", "redis", "mongodb", "mongo", "postgres", "postgresql"}
	validLevels     = []string{"trace", "debug", "info", "warn", "warning", "error"}
	validFormats    = []string{"json", "text"}
	validModalities = []string{"AUDIO", "TEXT"}
)

// Validate checks the configuration and returns validation results
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		result.AddError("logging.level", c.Logging.Level, "must be one of: "+strings.Join(validLevels, ", "))
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		result.AddError("logging.format", c.Logging.Format, "must be json or text")
	}

	backend := strings.ToLower(c.Storage.Backend)
	if !slices.Contains(validBackends, backend) {
		result.AddError("storage.backend", c.Storage.Backend, "must be one of: file, redis, mongodb, postgres")
	}
	switch backend {
	case "redis":
		if c.Storage.RedisAddr == "" {
			result.AddError("storage.redis_addr", "", "required when using redis backend")
		}
	case "mongodb", "mongo":
		if c.Storage.MongoURI == "" {
			result.AddError("storage.mongo_uri", "", "required when using mongodb backend")
		}
	case "postgres", "postgresql":
		if c.Storage.PostgresDSN == "" {
			result.AddError("storage.postgres_dsn", "", "required when using postgres backend")
		}
	}

	s := c.Session
	if s.Model == "" {
		result.AddError("session.model", "", "model is required")
	}
	if !strings.HasPrefix(s.Endpoint, "ws://") && !strings.HasPrefix(s.Endpoint, "wss://") {
		result.AddError("session.endpoint", s.Endpoint, "must be a ws:// or wss:// URL")
	}
	for _, m := range s.ResponseModalities {
		if !slices.Contains(validModalities, strings.ToUpper(m)) {
			result.AddError("session.response_modalities", m, "must be AUDIO or TEXT")
		}
	}
	if s.MaxBackoff < s.BaseBackoff {
		result.AddError("session.max_backoff", s.MaxBackoff.String(), "must not be below base_backoff")
	}
	if s.MaxConsecutiveErrors < 2 {
		result.AddWarning("session.max_consecutive_errors", fmt.Sprint(s.MaxConsecutiveErrors), "health check turns unhealthy after the first error")
	}

	if c.Admin.Enabled && c.Admin.Key == "" && c.Admin.KeyHash == "" {
		result.AddError("admin.key", "", "admin API requires key or key_hash")
	}
	if c.Admin.Key != "" && c.Admin.KeyHash != "" {
		result.AddWarning("admin.key", "<redacted>", "both key and key_hash set; either one is accepted")
	}

	return result
}
