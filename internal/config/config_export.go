package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Export writes cfg as YAML with secrets redacted.
func Export(w io.Writer, cfg *Config) error {
	cp := *cfg
	redact := func(s *string) {
		if *s != "" {
			*s = "<redacted>"
		}
	}
	redact(&cp.Storage.RedisPassword)
	redact(&cp.Storage.PostgresDSN)
	redact(&cp.Storage.MongoURI)
	redact(&cp.Admin.Key)
	redact(&cp.Admin.KeyHash)

	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
