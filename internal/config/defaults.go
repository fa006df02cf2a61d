package config

import "time"

const (
	DefaultModel    = "models/gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice    = "Aoede"
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

// Defaults returns a configuration that works with only GEMINI_API_KEY set.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Credentials: CredentialsConfig{
			HealthInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend:       "file",
			BaseDir:       ".",
			RedisPrefix:   "geminivoice:",
			MongoDatabase: "geminivoice",
			ResumeTTL:     2 * time.Hour,
		},
		Session: SessionConfig{
			Endpoint:              DefaultEndpoint,
			Model:                 DefaultModel,
			Voice:                 DefaultVoice,
			ResponseModalities:    []string{"AUDIO"},
			InputTranscription:    true,
			OutputTranscription:   true,
			DialTimeout:           15 * time.Second,
			MaxRetries:            3,
			BaseBackoff:           time.Second,
			MaxBackoff:            30 * time.Second,
			RotationCooldown:      30 * time.Second,
			MaxConsecutiveErrors:  5,
			ActivityCheckInterval: 30 * time.Second,
		},
		Admin: AdminConfig{
			Addr:           "127.0.0.1:8765",
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Tasks: TasksConfig{
			MaxConcurrent: 8,
		},
	}
}

// fillZeroes copies defaults into fields a partial config file left empty.
func (c *Config) fillZeroes() {
	d := Defaults()
	setStr := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	setInt := func(dst *int, def int) {
		if *dst <= 0 {
			*dst = def
		}
	}
	setDur := func(dst *time.Duration, def time.Duration) {
		if *dst <= 0 {
			*dst = def
		}
	}

	setStr(&c.Logging.Level, d.Logging.Level)
	setStr(&c.Logging.Format, d.Logging.Format)
	setDur(&c.Credentials.HealthInterval, d.Credentials.HealthInterval)

	setStr(&c.Storage.Backend, d.Storage.Backend)
	setStr(&c.Storage.BaseDir, d.Storage.BaseDir)
	setStr(&c.Storage.RedisPrefix, d.Storage.RedisPrefix)
	setStr(&c.Storage.MongoDatabase, d.Storage.MongoDatabase)
	setDur(&c.Storage.ResumeTTL, d.Storage.ResumeTTL)

	s := &c.Session
	setStr(&s.Endpoint, d.Session.Endpoint)
	setStr(&s.Model, d.Session.Model)
	setStr(&s.Voice, d.Session.Voice)
	if len(s.ResponseModalities) == 0 {
		s.ResponseModalities = d.Session.ResponseModalities
	}
	setDur(&s.DialTimeout, d.Session.DialTimeout)
	setInt(&s.MaxRetries, d.Session.MaxRetries)
	setDur(&s.BaseBackoff, d.Session.BaseBackoff)
	setDur(&s.MaxBackoff, d.Session.MaxBackoff)
	setDur(&s.RotationCooldown, d.Session.RotationCooldown)
	setInt(&s.MaxConsecutiveErrors, d.Session.MaxConsecutiveErrors)
	setDur(&s.ActivityCheckInterval, d.Session.ActivityCheckInterval)

	setStr(&c.Admin.Addr, d.Admin.Addr)
	if c.Admin.RateLimitRPS <= 0 {
		c.Admin.RateLimitRPS = d.Admin.RateLimitRPS
	}
	setInt(&c.Admin.RateLimitBurst, d.Admin.RateLimitBurst)
	setInt(&c.Tasks.MaxConcurrent, d.Tasks.MaxConcurrent)
}
