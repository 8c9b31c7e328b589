package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "SnakeArena", cfg.Server.Name)
	assert.True(t, cfg.Features.Chat)
	assert.False(t, cfg.Features.Powerups)
	assert.True(t, cfg.Features.Accessibility)
	assert.Equal(t, 4, cfg.Game.MaxPlayersPerRoom)
	assert.Equal(t, 30*time.Second, cfg.Game.DisconnectGrace)
	assert.Equal(t, 10*time.Second, cfg.Game.RoomCleanupDelay)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 800, cfg.RateLimit.ChatIntervalMs)
	assert.NotZero(t, cfg.Server.StartTime)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080
name = "LAN Party"

[features]
powerups = true

[game]
disconnect_grace = "45s"

[logging]
format = "json"
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "LAN Party", cfg.Server.Name)
	assert.True(t, cfg.Features.Powerups)
	assert.Equal(t, 45*time.Second, cfg.Game.DisconnectGrace)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Features.Chat, "untouched sections keep defaults")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 8080\n")
	t.Setenv("PORT", "9090")
	t.Setenv("ENABLE_CHAT", "false")
	t.Setenv("ENABLE_POWERUPS", "on")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Features.Chat)
	assert.True(t, cfg.Features.Powerups)
}

func TestLoadFlagsWinOverEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"),
		[]string{"--port", "7000", "--disable-chat", "--enable-powerups"})
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.False(t, cfg.Features.Chat)
	assert.True(t, cfg.Features.Powerups)
}

func TestLoadRejectsBadPortEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	assert.Error(t, err)

	t.Setenv("PORT", "70000")
	_, err = Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nport=???"), nil)
	assert.Error(t, err)
}
