package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DELAY_MIN", "DELAY_MAX", "MAX_PER_SESSION", "MAX_RETRIES", "TIMEOUT",
	"CHROME_PATH", "LOGIN_URL", "USER_DATA_DIR", "LOG_LEVEL", "LOG_FORMAT", "HEADLESS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 30000, cfg.Session.DelayMinMs)
	assert.Equal(t, 90000, cfg.Session.DelayMaxMs)
	assert.Equal(t, 20, cfg.Session.MaxPerSession)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout())
	assert.Equal(t, 3*time.Second, cfg.Browser.Settle())
	assert.Equal(t, ".login-wrapper", cfg.Selectors.LoginMarker)
	assert.Equal(t, "30000-90000ms", cfg.Session.DelayRange())
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.True(t, filepath.IsAbs(cfg.Browser.UserDataDir))
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: 8080
session:
  delay_min_ms: 1000
  delay_max_ms: 2000
  max_per_session: 5
selectors:
  send_button: "button.send"
`)
	t.Setenv("MAX_PER_SESSION", "7")
	t.Setenv("HEADLESS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Session.DelayMin())
	assert.Equal(t, 2*time.Second, cfg.Session.DelayMax())
	assert.Equal(t, 7, cfg.Session.MaxPerSession, "env wins over the file")
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "button.send", cfg.Selectors.SendButton)
	assert.Equal(t, ".btn-send", Default().Selectors.SendButton)
	assert.Equal(t, ".chatlist-chat", cfg.Selectors.SearchResult, "unset keys keep defaults")
}

func TestEnvUnparsableFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DELAY_MIN", "soon")
	t.Setenv("PORT", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Session.DelayMinMs)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "server: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"min above max", func(c *Config) { c.Session.DelayMinMs = 5; c.Session.DelayMaxMs = 4 }, "exceeds"},
		{"negative min", func(c *Config) { c.Session.DelayMinMs = -1 }, "must not be negative"},
		{"zero per session", func(c *Config) { c.Session.MaxPerSession = 0 }, "max_per_session"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"no login url", func(c *Config) { c.Browser.LoginURL = "" }, "login_url"},
		{"blank selector", func(c *Config) { c.Selectors.SearchInput = "" }, "selectors"},
		{"rate limit without rate", func(c *Config) { c.RateLimiting.Enabled = true }, "messages_per_minute"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
