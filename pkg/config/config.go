// Package config loads and watches the daemon's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root of the on-disk configuration. Fields missing from
// the file keep their defaults.
type Config struct {
	Modules       ModulesConfig       `toml:"modules"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// ModulesConfig selects and tunes the indicator modules. Pointer sections
// are disabled when absent from the file.
type ModulesConfig struct {
	// Order lists modules left to right; modules not listed appear after
	// the listed ones.
	Order []string `toml:"order"`

	Tray          TrayConfig           `toml:"tray"`
	Battery       *BatteryConfig       `toml:"battery"`
	Clock         *ClockConfig         `toml:"clock"`
	System        *SystemConfig        `toml:"system"`
	Network       *NetworkConfig       `toml:"network"`
	Weather       *WeatherConfig       `toml:"weather"`
	Audio         *AudioConfig         `toml:"audio"`
	PowerProfiles *PowerProfilesConfig `toml:"power_profiles"`
	Scripts       []ScriptConfig       `toml:"scripts"`
}

type TrayConfig struct {
	Enabled bool `toml:"enabled"`
}

type BatteryConfig struct {
	Enabled bool `toml:"enabled"`

	// Percentage thresholds for the low and critical notifications.
	LowThreshold      int `toml:"low_threshold"`
	CriticalThreshold int `toml:"critical_threshold"`

	NotifyFullCharge bool `toml:"notify_full_charge"`
}

type ClockConfig struct {
	Enabled bool `toml:"enabled"`

	// Format is a Go time layout for the label, DateFormat for the
	// tooltip.
	Format     string `toml:"format"`
	DateFormat string `toml:"date_format"`
}

type SystemConfig struct {
	Enabled         bool `toml:"enabled"`
	ShowCPU         bool `toml:"show_cpu"`
	ShowMemory      bool `toml:"show_memory"`
	ShowTemperature bool `toml:"show_temperature"`
	IntervalSeconds int  `toml:"interval_seconds"`
}

type NetworkConfig struct {
	Enabled bool `toml:"enabled"`

	// Interface to monitor; empty auto-detects the default route
	// interface.
	Interface       string `toml:"interface"`
	ShowIP          bool   `toml:"show_ip"`
	ShowSpeed       bool   `toml:"show_speed"`
	IntervalSeconds int    `toml:"interval_seconds"`
}

type WeatherConfig struct {
	Enabled bool `toml:"enabled"`

	// Location is a city name; empty auto-detects from IP.
	Location        string `toml:"location"`
	IntervalSeconds int    `toml:"interval_seconds"`

	// Units is "celsius" or "fahrenheit".
	Units string `toml:"units"`
}

type AudioConfig struct {
	Enabled bool `toml:"enabled"`

	ShowVolume     bool `toml:"show_volume"`
	ShowMicrophone bool `toml:"show_microphone"`

	// MaxVolume caps volume-up actions; 100 is nominal, higher values
	// allow boost.
	MaxVolume int `toml:"max_volume"`

	// ScrollStep is the percentage adjusted per volume step.
	ScrollStep int `toml:"scroll_step"`
}

type PowerProfilesConfig struct {
	Enabled bool `toml:"enabled"`
}

type ScriptConfig struct {
	Name            string `toml:"name"`
	Command         string `toml:"command"`
	IntervalSeconds int    `toml:"interval_seconds"`
	Icon            string `toml:"icon"`
	Tooltip         string `toml:"tooltip"`
}

type NotificationsConfig struct {
	Enabled bool `toml:"enabled"`

	// TimeoutMs of 0 means the notification never expires.
	TimeoutMs int `toml:"timeout_ms"`
}

// Default returns the configuration used when no file exists: only the
// tray module enabled, notifications on.
func Default() *Config {
	return &Config{
		Modules: ModulesConfig{
			Order: []string{"tray"},
			Tray:  TrayConfig{Enabled: true},
		},
		Notifications: NotificationsConfig{
			Enabled:   true,
			TimeoutMs: 5000,
		},
	}
}

// DefaultPath returns ~/.config/waytray/config.toml (respecting
// XDG_CONFIG_HOME).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "waytray", "config.toml"), nil
}

// Load reads the file at path, decoding over defaults so omitted keys keep
// their default values. A missing file is created with a commented default
// configuration and the defaults are returned.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, err
		}
		return Default(), nil
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigText), 0o644); err != nil {
		return fmt.Errorf("write default config %s: %w", path, err)
	}
	return nil
}

const defaultConfigText = `# WayTray configuration

[modules]
# Module display order (left to right). Modules not listed appear after
# these.
order = ["tray"]

[modules.tray]
enabled = true

# [modules.battery]
# enabled = true
# low_threshold = 20
# critical_threshold = 10
# notify_full_charge = false

# [modules.clock]
# enabled = true
# format = "15:04"
# date_format = "Monday, January 2, 2006"

# [modules.system]
# enabled = true
# show_cpu = true
# show_memory = true
# show_temperature = false
# interval_seconds = 5

# [modules.network]
# enabled = true
# interface = ""
# show_ip = false
# show_speed = true
# interval_seconds = 2

# [modules.weather]
# enabled = true
# location = ""
# interval_seconds = 1800
# units = "celsius"

# [modules.audio]
# enabled = true
# show_volume = true
# show_microphone = false
# max_volume = 100
# scroll_step = 5

# [modules.power_profiles]
# enabled = true

# [[modules.scripts]]
# name = "uptime"
# command = "uptime -p"
# interval_seconds = 60
# icon = "computer-symbolic"

[notifications]
enabled = true
timeout_ms = 5000
`

// ModuleOrder returns the configured display order.
func (c *Config) ModuleOrder() []string {
	return c.Modules.Order
}
