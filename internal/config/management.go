package config

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// CheckAdminKey verifies candidate against the configured admin key or its bcrypt hash.
func CheckAdminKey(cfg AdminConfig, candidate string) bool {
	if candidate == "" {
		return false
	}
	if cfg.Key != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(cfg.Key)) == 1 {
		return true
	}
	if cfg.KeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.KeyHash), []byte(candidate)); err == nil {
			return true
		}
	}
	return false
}

// AdminKeyValidator returns a closure suitable for middleware validation. get is
// consulted on every call so hot-reloaded keys take effect.
func AdminKeyValidator(get func() *Config) func(string) bool {
	return func(candidate string) bool {
		cfg := get()
		if cfg == nil {
			return false
		}
		return CheckAdminKey(cfg.Admin, candidate)
	}
}
