package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbuliHe/visualizer/internal/config"
)

// isolate points the loader at files that do not exist so the working
// directory never leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VISUALIZER_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("API_URL", "http://upstream.test/v1/chat/completions")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 3, cfg.Completion.MaxAttempts)
	assert.Equal(t, 50501, cfg.Completion.RetryableCode)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "javascript", cfg.Sandbox.Language)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "服务暂时不可用，请稍后再试", cfg.Server.ErrorMessage)
	assert.Equal(t, 50, cfg.Completion.Sampling.TopK)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8090
completion:
  model: yaml-model
  timeout: 10s
  sampling:
    temperature: 0.2
sandbox:
  language: lua
  timeout: 2s
server:
  cors_origins: ["https://plot.example"]
`), 0o600))

	t.Setenv("VISUALIZER_PORT", "9000")
	t.Setenv("VISUALIZER_SANDBOX_TIMEOUT", "750ms")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "yaml-model", cfg.Completion.Model)
	assert.Equal(t, 10*time.Second, cfg.Completion.Timeout)
	assert.InDelta(t, 0.2, cfg.Completion.Sampling.Temperature, 1e-9)
	assert.Equal(t, "lua", cfg.Sandbox.Language)
	assert.Equal(t, 750*time.Millisecond, cfg.Sandbox.Timeout)
	assert.Equal(t, []string{"https://plot.example"}, cfg.Server.CORSOrigins)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Completion.MaxAttempts)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("API_URL=http://from-dotenv.test\nAPI_KEY=sk-dotenv\n"), 0o600))
	t.Setenv("VISUALIZER_ENV_FILE", envPath)
	// Setenv restores the originals; unset so the file is not shadowed.
	for _, key := range []string{"API_URL", "API_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://from-dotenv.test", cfg.Completion.URL)
	assert.Equal(t, "sk-dotenv", cfg.Completion.APIKey)
}

func TestLoad_EnvLists(t *testing.T) {
	isolate(t)
	t.Setenv("VISUALIZER_API_KEYS", "k1, k2,,")
	t.Setenv("VISUALIZER_CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestLoad_APIKeyFile(t *testing.T) {
	dir := isolate(t)
	keyPath := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("sk-file\n"), 0o600))
	t.Setenv("API_KEY_FILE", keyPath)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.Completion.APIKey)
}

func TestLoad_MissingURL(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VISUALIZER_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("API_URL", "")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_URL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{"ok", func(*config.Config) {}, ""},
		{"bad port", func(c *config.Config) { c.Port = 0 }, "port"},
		{"no attempts", func(c *config.Config) { c.Completion.MaxAttempts = 0 }, "max_attempts"},
		{"bad language", func(c *config.Config) { c.Sandbox.Language = "python" }, "sandbox.language"},
		{"bad sandbox timeout", func(c *config.Config) { c.Sandbox.Timeout = 0 }, "sandbox.timeout"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty message", func(c *config.Config) { c.Server.ErrorMessage = "" }, "error_message"},
		{"bad sample ratio", func(c *config.Config) { c.Telemetry.SampleRatio = 1.5 }, "sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Completion.URL = "http://upstream.test"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
