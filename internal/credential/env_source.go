package credential

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	envPrimaryKey      = "GEMINI_API_KEY"
	envPrimaryName     = "GEMINI_API_KEY_NAME"
	defaultPrimaryName = "primary"
	// numbered alternates run from _2 up to and including _19
	envFirstAlternate = 2
	envLastAlternate  = 19
)

// EnvSource reads GEMINI_API_KEY and its numbered alternates GEMINI_API_KEY_2 ..
// GEMINI_API_KEY_19. Each may be named with GEMINI_API_KEY_NAME or GEMINI_API_KEY_<n>_NAME.
type EnvSource struct {
	getenv func(string) string
}

// NewEnvSource creates an environment credential source.
func NewEnvSource() *EnvSource {
	return &EnvSource{getenv: os.Getenv}
}

func (s *EnvSource) Name() string { return string(OriginEnv) }

func (s *EnvSource) Load(ctx context.Context) ([]*Record, error) {
	out := make([]*Record, 0, 2)
	seen := make(map[string]struct{})

	add := func(secret, label string) {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return
		}
		rec := NewRecord(label, secret, OriginEnv)
		if _, dup := seen[rec.Secret.Fingerprint()]; dup {
			log.WithField("credential", label).Debug("skipping duplicate environment credential")
			return
		}
		seen[rec.Secret.Fingerprint()] = struct{}{}
		out = append(out, rec)
	}

	add(s.getenv(envPrimaryKey), s.nameOr(envPrimaryName, defaultPrimaryName))
	for i := envFirstAlternate; i <= envLastAlternate; i++ {
		add(
			s.getenv(fmt.Sprintf("%s_%d", envPrimaryKey, i)),
			s.nameOr(fmt.Sprintf("%s_%d_NAME", envPrimaryKey, i), fmt.Sprintf("env_key_%d", i)),
		)
	}

	if len(out) > 0 {
		log.Infof("Loaded %d credential(s) from environment variables", len(out))
	}
	return out, nil
}

func (s *EnvSource) nameOr(key, fallback string) string {
	if v := strings.TrimSpace(s.getenv(key)); v != "" {
		return v
	}
	return fallback
}
