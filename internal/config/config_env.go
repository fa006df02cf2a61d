package config

import "time"

// applyEnv overlays environment variables on c. Credentials themselves
// (GEMINI_API_KEY, GEMINI_API_KEY_2 ...) are read by the credential env source.
func (c *Config) applyEnv() {
	setStringFromEnv("LOG_LEVEL", &c.Logging.Level)
	setStringFromEnv("LOG_FORMAT", &c.Logging.Format)
	setStringFromEnv("LOG_FILE", &c.Logging.File)
	setToggleFromEnv("DEBUG", func(v bool) { c.Logging.Debug = v })

	setStringFromEnv("GEMINI_KEYRING_SERVICE", &c.Credentials.Keyring.Service)
	if v := getenv("GEMINI_KEYRING_ACCOUNTS", ""); v != "" {
		c.Credentials.Keyring.Accounts = splitAndTrim(v, ",")
	}
	setDurationFromEnv("CREDENTIAL_HEALTH_INTERVAL", func(d time.Duration) { c.Credentials.HealthInterval = d })
	setToggleFromEnv("DISABLE_KEY_ROTATION", func(v bool) { c.Credentials.DisableRotation = v })

	st := &c.Storage
	setStringFromEnv("STORAGE_BACKEND", &st.Backend)
	setStringFromEnv("STORAGE_DIR", &st.BaseDir)
	setStringFromEnv("REDIS_ADDR", &st.RedisAddr)
	setStringFromEnv("REDIS_PASSWORD", &st.RedisPassword)
	setIntFromEnv("REDIS_DB", func(n int) { st.RedisDB = n })
	setStringFromEnv("REDIS_PREFIX", &st.RedisPrefix)
	setStringFromEnv("MONGODB_URI", &st.MongoURI)
	setStringFromEnv("MONGODB_DATABASE", &st.MongoDatabase)
	setStringFromEnv("POSTGRES_DSN", &st.PostgresDSN)
	setDurationFromEnv("SESSION_RESUME_TTL", func(d time.Duration) { st.ResumeTTL = d })

	s := &c.Session
	setStringFromEnv("GEMINI_LIVE_ENDPOINT", &s.Endpoint)
	setStringFromEnv("GEMINI_MODEL", &s.Model)
	setStringFromEnv("VOICE_NAME", &s.Voice)
	setStringFromEnv("SYSTEM_INSTRUCTION", &s.SystemInstruction)
	if v := getenv("RESPONSE_MODALITIES", ""); v != "" {
		s.ResponseModalities = splitAndTrim(v, ",")
	}
	setIntFromEnv("SESSION_MAX_RETRIES", func(n int) { s.MaxRetries = n })
	setDurationFromEnv("SESSION_BASE_BACKOFF", func(d time.Duration) { s.BaseBackoff = d })
	setDurationFromEnv("SESSION_MAX_BACKOFF", func(d time.Duration) { s.MaxBackoff = d })
	setDurationFromEnv("SESSION_ROTATION_COOLDOWN", func(d time.Duration) { s.RotationCooldown = d })
	setIntFromEnv("SESSION_MAX_CONSECUTIVE_ERRORS", func(n int) { s.MaxConsecutiveErrors = n })
	setDurationFromEnv("SESSION_ACTIVITY_CHECK_INTERVAL", func(d time.Duration) { s.ActivityCheckInterval = d })

	setToggleFromEnv("ADMIN_ENABLED", func(v bool) { c.Admin.Enabled = v })
	setStringFromEnv("ADMIN_ADDR", &c.Admin.Addr)
	setStringFromEnv("ADMIN_KEY", &c.Admin.Key)
	setStringFromEnv("ADMIN_KEY_HASH", &c.Admin.KeyHash)
	setFloatFromEnv("ADMIN_RATE_LIMIT_RPS", func(f float64) { c.Admin.RateLimitRPS = f })
	setIntFromEnv("ADMIN_RATE_LIMIT_BURST", func(n int) { c.Admin.RateLimitBurst = n })

	setIntFromEnv("TASKS_MAX_CONCURRENT", func(n int) { c.Tasks.MaxConcurrent = n })
	setStringFromEnv("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)
}
