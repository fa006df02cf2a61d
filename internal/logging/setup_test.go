package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geminivoice-go/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLevelsAndFormat(t *testing.T) {
	t.Cleanup(func() { _ = Setup(config.LoggingConfig{Level: "info"}) })

	require.NoError(t, Setup(config.LoggingConfig{Level: "warn"}))
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	_, isJSON := log.StandardLogger().Formatter.(*log.JSONFormatter)
	assert.True(t, isJSON)

	require.NoError(t, Setup(config.LoggingConfig{Level: "warn", Debug: true}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	_, isText := log.StandardLogger().Formatter.(*log.TextFormatter)
	assert.True(t, isText)

	require.NoError(t, Setup(config.LoggingConfig{Level: "loud"}))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestSetupWritesLogFile(t *testing.T) {
	t.Cleanup(func() { _ = Setup(config.LoggingConfig{Level: "info"}) })
	path := filepath.Join(t.TempDir(), "logs", "voice.log")

	require.NoError(t, Setup(config.LoggingConfig{Level: "info", File: path}))
	WithCredential("primary").Info("credential selected")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"credential":"primary"`), string(data))
}
