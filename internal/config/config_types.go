package config

import (
	"time"

	"geminivoice-go/internal/storage"
)

// Config is the full runtime configuration of the voice client.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Storage     StorageConfig     `yaml:"storage"`
	Session     SessionConfig     `yaml:"session"`
	Admin       AdminConfig       `yaml:"admin"`
	Tasks       TasksConfig       `yaml:"tasks"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// LoggingConfig controls the global logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
	File   string `yaml:"file"`
	Debug  bool   `yaml:"debug"`
}

// CredentialsConfig covers the credential pool and its extra sources.
type CredentialsConfig struct {
	Keyring         KeyringConfig `yaml:"keyring"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	DisableRotation bool          `yaml:"disable_rotation"`
}

// KeyringConfig names OS keychain items to load as credentials. The account name
// doubles as the credential label.
type KeyringConfig struct {
	Service  string   `yaml:"service"`
	Accounts []string `yaml:"accounts"`
}

// StorageConfig selects where credential metadata and resume handles live.
type StorageConfig struct {
	Backend       string        `yaml:"backend"` // file | redis | mongodb | postgres
	BaseDir       string        `yaml:"base_dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	MongoURI      string        `yaml:"mongo_uri"`
	MongoDatabase string        `yaml:"mongo_database"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	ResumeTTL     time.Duration `yaml:"resume_ttl"`
}

// BackendOptions converts the section into storage.Open options.
func (s StorageConfig) BackendOptions() storage.Options {
	return storage.Options{
		Backend:       s.Backend,
		BaseDir:       s.BaseDir,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		RedisPrefix:   s.RedisPrefix,
		MongoURI:      s.MongoURI,
		MongoDatabase: s.MongoDatabase,
		PostgresDSN:   s.PostgresDSN,
	}
}

// SessionConfig holds the upstream session settings and the resilience knobs.
type SessionConfig struct {
	Endpoint            string   `yaml:"endpoint"`
	Model               string   `yaml:"model"`
	Voice               string   `yaml:"voice"`
	SystemInstruction   string   `yaml:"system_instruction"`
	ResponseModalities  []string `yaml:"response_modalities"`
	InputTranscription  bool     `yaml:"input_transcription"`
	OutputTranscription bool     `yaml:"output_transcription"`

	DialTimeout           time.Duration `yaml:"dial_timeout"`
	MaxRetries            int           `yaml:"max_retries"`
	BaseBackoff           time.Duration `yaml:"base_backoff"`
	MaxBackoff            time.Duration `yaml:"max_backoff"`
	RotationCooldown      time.Duration `yaml:"rotation_cooldown"`
	MaxConsecutiveErrors  int           `yaml:"max_consecutive_errors"`
	ActivityCheckInterval time.Duration `yaml:"activity_check_interval"`
}

// AdminConfig configures the local management API.
type AdminConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Addr           string  `yaml:"addr"`
	Key            string  `yaml:"key"`
	KeyHash        string  `yaml:"key_hash"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// TasksConfig bounds background work.
type TasksConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// TracingConfig points OpenTelemetry at an OTLP collector. Empty disables tracing.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
}
