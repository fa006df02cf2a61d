package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/upstream/upstreamtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := "logging:\n  level: warn\n" +
		"storage:\n  backend: file\n  base_dir: " + dir + "\n" +
		"session:\n  model: models/test-model\n  voice: Puck\n  max_retries: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAppRunsConsoleAndPersists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "AIza-app-test-key-0001")
	t.Setenv("GEMINI_API_KEY_NAME", "")

	tr := upstreamtest.NewTransport(nil)
	a, err := newApp(context.Background(), appOptions{ConfigPath: writeConfig(t, dir), Transport: tr})
	require.NoError(t, err)

	out := &syncBuffer{}
	require.NoError(t, a.run(context.Background(), strings.NewReader("/quit\n"), out))
	require.Equal(t, 1, tr.Opens())
	cfg := tr.Configs()[0]
	assert.Equal(t, "models/test-model", cfg.Model)
	assert.Equal(t, "Puck", cfg.VoiceName)

	require.NoError(t, a.pool.AddKey("spare", "AIza-app-test-key-0002"))
	a.shutdown()

	data, err := os.ReadFile(filepath.Join(dir, "api_keys.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "spare"`)
	assert.NotContains(t, string(data), "AIza-app-test-key-0001", "env credentials are never persisted")
}

func TestAppFailsWithoutCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "")
	_, err := newApp(context.Background(), appOptions{ConfigPath: writeConfig(t, dir), Transport: upstreamtest.NewTransport(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestSessionConfigMapping(t *testing.T) {
	cfg := config.Defaults().Session
	cfg.SystemInstruction = "be brief"
	sc := sessionConfig(cfg)
	assert.Equal(t, config.DefaultModel, sc.Model)
	assert.Equal(t, config.DefaultVoice, sc.VoiceName)
	assert.Equal(t, "be brief", sc.SystemInstruction)
	assert.Equal(t, []string{"AUDIO"}, sc.ResponseModalities)

	opts := controllerOptions(cfg, nil, nil, nil, nil)
	assert.Equal(t, 30*time.Second, opts.RotationCooldown)
	assert.Equal(t, 5, opts.MaxConsecutiveErrors)
}
