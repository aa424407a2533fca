package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"tray"}, cfg.Modules.Order)
	assert.True(t, cfg.Modules.Tray.Enabled)
	assert.Nil(t, cfg.Modules.Battery)
	assert.Nil(t, cfg.Modules.Clock)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, 5000, cfg.Notifications.TimeoutMs)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waytray", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "[modules.tray]")
}

func TestLoadDecodesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[modules]
order = ["battery", "tray"]

[modules.battery]
enabled = true
low_threshold = 15

[modules.clock]
enabled = true
format = "15:04:05"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"battery", "tray"}, cfg.ModuleOrder())
	// Sections absent from the file keep their defaults.
	assert.True(t, cfg.Modules.Tray.Enabled)
	assert.Equal(t, 5000, cfg.Notifications.TimeoutMs)

	require.NotNil(t, cfg.Modules.Battery)
	assert.True(t, cfg.Modules.Battery.Enabled)
	assert.Equal(t, 15, cfg.Modules.Battery.LowThreshold)

	require.NotNil(t, cfg.Modules.Clock)
	assert.Equal(t, "15:04:05", cfg.Modules.Clock.Format)
	assert.Nil(t, cfg.Modules.Weather)
}

func TestLoadScripts(t *testing.T) {
	path := writeConfig(t, `
[[modules.scripts]]
name = "uptime"
command = "uptime -p"
interval_seconds = 60
icon = "computer-symbolic"

[[modules.scripts]]
name = "kernel"
command = "uname -r"
interval_seconds = 3600
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Modules.Scripts, 2)
	assert.Equal(t, "uptime", cfg.Modules.Scripts[0].Name)
	assert.Equal(t, "uptime -p", cfg.Modules.Scripts[0].Command)
	assert.Equal(t, 60, cfg.Modules.Scripts[0].IntervalSeconds)
	assert.Equal(t, "kernel", cfg.Modules.Scripts[1].Name)
	assert.Empty(t, cfg.Modules.Scripts[1].Icon)
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "not toml at all = [")

	_, err := Load(path)
	assert.Error(t, err)
}
