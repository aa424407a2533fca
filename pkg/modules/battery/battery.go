// Package battery publishes battery charge state read from UPower.
package battery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "battery"

const (
	upowerBusName     = "org.freedesktop.UPower"
	displayDevice     = "/org/freedesktop/UPower/devices/DisplayDevice"
	deviceInterface   = "org.freedesktop.UPower.Device"
	deviceTypeBattery = 2
)

const pollInterval = 30 * time.Second

// State mirrors the UPower device state enumeration.
type State uint32

const (
	StateUnknown State = iota
	StateCharging
	StateDischarging
	StateEmpty
	StateFullyCharged
	StatePendingCharge
	StatePendingDischarge
)

func (s State) String() string {
	switch s {
	case StateCharging:
		return "Charging"
	case StateDischarging:
		return "Discharging"
	case StateEmpty:
		return "Empty"
	case StateFullyCharged:
		return "Fully charged"
	case StatePendingCharge:
		return "Pending charge"
	case StatePendingDischarge:
		return "Pending discharge"
	default:
		return "Unknown"
	}
}

// iconName picks the theme battery icon for a state and charge level.
func iconName(state State, percentage int) string {
	if state == StateFullyCharged {
		return "battery-full-charged"
	}
	if state == StateCharging {
		switch {
		case percentage >= 90:
			return "battery-full-charging"
		case percentage >= 60:
			return "battery-good-charging"
		case percentage >= 30:
			return "battery-low-charging"
		default:
			return "battery-caution-charging"
		}
	}
	switch {
	case percentage >= 90:
		return "battery-full"
	case percentage >= 60:
		return "battery-good"
	case percentage >= 30:
		return "battery-low"
	case percentage >= 10:
		return "battery-caution"
	default:
		return "battery-empty"
	}
}

type info struct {
	percentage int
	state      State
	// seconds to full when charging, to empty when discharging
	remaining int64
}

// Module polls the UPower display device and raises low, critical and
// full-charge notifications with edge triggering (one notification per
// threshold crossing, re-armed when the state changes back).
type Module struct {
	module.Base

	conn *dbus.Conn
	log  *zap.SugaredLogger

	mu  sync.RWMutex
	cfg config.BatteryConfig

	notifiedLow      bool
	notifiedCritical bool
	notifiedFull     bool
}

// Factory returns the module factory for the registry. conn must be a
// system bus connection; UPower does not live on the session bus.
func Factory(conn *dbus.Conn, log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.Battery != nil && cfg.Modules.Battery.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(conn, log, *cfg.Modules.Battery)
		},
	}
}

// New returns an unstarted battery module.
func New(conn *dbus.Conn, log *zap.SugaredLogger, cfg config.BatteryConfig) *Module {
	return &Module{conn: conn, log: log, cfg: cfg}
}

func (m *Module) Name() string { return moduleName }

// Run polls every 30 seconds. UPower emits PropertiesChanged signals too,
// but battery changes are slow and polling keeps the loop trivial.
func (m *Module) Run(ctx context.Context, mc *module.Context) {
	m.poll(mc)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(mc)
		}
	}
}

// ReloadConfig swaps in the new thresholds without restarting the loop.
func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if cfg.Modules.Battery == nil {
		return false
	}
	m.mu.Lock()
	m.cfg = *cfg.Modules.Battery
	m.mu.Unlock()
	return true
}

func (m *Module) poll(mc *module.Context) {
	inf, ok := m.read()
	if !ok {
		// No battery present; publish an empty list rather than failing
		// the module.
		mc.PublishItems(moduleName, nil)
		return
	}

	mc.PublishItems(moduleName, []module.Item{makeItem(inf)})
	m.notify(mc, inf)
}

func (m *Module) read() (info, bool) {
	if m.conn == nil {
		return info{}, false
	}
	device := m.conn.Object(upowerBusName, displayDevice)

	var present bool
	if v, err := device.GetProperty(deviceInterface + ".IsPresent"); err != nil || v.Store(&present) != nil || !present {
		return info{}, false
	}

	var deviceType uint32
	if v, err := device.GetProperty(deviceInterface + ".Type"); err != nil || v.Store(&deviceType) != nil || deviceType != deviceTypeBattery {
		return info{}, false
	}

	var inf info
	var percentage float64
	if v, err := device.GetProperty(deviceInterface + ".Percentage"); err == nil {
		v.Store(&percentage)
	}
	inf.percentage = int(percentage)

	var state uint32
	if v, err := device.GetProperty(deviceInterface + ".State"); err == nil {
		v.Store(&state)
	}
	inf.state = State(state)

	switch inf.state {
	case StateCharging:
		if v, err := device.GetProperty(deviceInterface + ".TimeToFull"); err == nil {
			v.Store(&inf.remaining)
		}
	case StateDischarging:
		if v, err := device.GetProperty(deviceInterface + ".TimeToEmpty"); err == nil {
			v.Store(&inf.remaining)
		}
	}

	return inf, true
}

func makeItem(inf info) module.Item {
	parts := []string{
		fmt.Sprintf("Battery: %d%%", inf.percentage),
		fmt.Sprintf("Status: %s", inf.state),
	}
	if remaining := formatDuration(inf.remaining); remaining != "" {
		switch inf.state {
		case StateCharging:
			parts = append(parts, "Time to full: "+remaining)
		case StateDischarging:
			parts = append(parts, "Time remaining: "+remaining)
		}
	}

	return module.NewItem(moduleName, "status", fmt.Sprintf("%d%%", inf.percentage)).
		WithIcon(iconName(inf.state, inf.percentage)).
		WithTooltip(strings.Join(parts, "\n"))
}

func (m *Module) notify(mc *module.Context, inf info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inf.state == StateFullyCharged {
		if m.cfg.NotifyFullCharge && !m.notifiedFull {
			mc.Notify(
				"Battery Fully Charged",
				"Battery is fully charged. You can unplug the charger.",
				module.UrgencyLow,
			)
			m.notifiedFull = true
		}
	} else {
		m.notifiedFull = false
	}

	if inf.state != StateDischarging {
		m.notifiedLow = false
		m.notifiedCritical = false
		return
	}

	switch {
	case inf.percentage <= m.cfg.CriticalThreshold:
		if !m.notifiedCritical {
			mc.Notify(
				"Critical Battery",
				fmt.Sprintf("Battery is at %d%%. Connect charger immediately.", inf.percentage),
				module.UrgencyCritical,
			)
			m.notifiedCritical = true
		}
	case inf.percentage <= m.cfg.LowThreshold:
		if !m.notifiedLow {
			mc.Notify(
				"Low Battery",
				fmt.Sprintf("Battery is at %d%%. Consider connecting charger.", inf.percentage),
				module.UrgencyNormal,
			)
			m.notifiedLow = true
		}
	}
}

// formatDuration renders seconds as "2h 13m" or "45m"; empty for unknown.
func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
