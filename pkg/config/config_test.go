package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
base_url: "https://support.example.com"
plugin_id: "plugin-1"
guest_ghost: true
typing_timeout: 5s
redis:
  enabled: true
  addr: "redis:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://support.example.com", cfg.BaseURL)
	require.Equal(t, "plugin-1", cfg.PluginID)
	require.True(t, cfg.GuestGhost)
	require.Equal(t, 5*time.Second, cfg.TypingTimeout)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	// Untouched fields keep their defaults.
	require.Equal(t, "chat-ui", cfg.Redis.Group)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
plugin_id: "plugin-from-file"
`)
	t.Setenv("CHATKIT_PLUGIN_ID", "plugin-from-env")
	t.Setenv("CHATKIT_REDIS_ENABLED", "true")
	t.Setenv("CHATKIT_TYPING_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "plugin-from-env", cfg.PluginID)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, 2*time.Second, cfg.TypingTimeout)
}

func TestLoadRequiresPluginID(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("CHATKIT_PLUGIN_ID", "plugin-1")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "plugin-1", cfg.PluginID)
}
