// Package powerprofiles shows the active power profile and switches
// between them through power-profiles-daemon.
package powerprofiles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/menu"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "power_profiles"

const (
	ppdBusName   = "org.freedesktop.UPower.PowerProfiles"
	ppdPath      = "/org/freedesktop/UPower/PowerProfiles"
	ppdInterface = "org.freedesktop.UPower.PowerProfiles"
)

const pollInterval = 2 * time.Second

// Profile is a power-profiles-daemon profile name.
type Profile string

const (
	ProfilePowerSaver  Profile = "power-saver"
	ProfileBalanced    Profile = "balanced"
	ProfilePerformance Profile = "performance"
)

// profileFromString maps the daemon's value; unknown values fall back
// to balanced.
func profileFromString(s string) Profile {
	switch s {
	case string(ProfilePowerSaver):
		return ProfilePowerSaver
	case string(ProfilePerformance):
		return ProfilePerformance
	default:
		return ProfileBalanced
	}
}

func (p Profile) DisplayName() string {
	switch p {
	case ProfilePowerSaver:
		return "Power Saver"
	case ProfilePerformance:
		return "Performance"
	default:
		return "Balanced"
	}
}

func (p Profile) icon() string {
	switch p {
	case ProfilePowerSaver:
		return "power-profile-power-saver-symbolic"
	case ProfilePerformance:
		return "power-profile-performance-symbolic"
	default:
		return "power-profile-balanced-symbolic"
	}
}

// next returns the following profile in the cycle order saver,
// balanced, performance.
func (p Profile) next() Profile {
	switch p {
	case ProfilePowerSaver:
		return ProfileBalanced
	case ProfileBalanced:
		return ProfilePerformance
	default:
		return ProfilePowerSaver
	}
}

// menuProfiles fixes the menu order; node ids are the 1-based index.
var menuProfiles = []Profile{ProfilePowerSaver, ProfileBalanced, ProfilePerformance}

type state struct {
	profile  Profile
	degraded string
}

// Module polls power-profiles-daemon and offers a cycle action plus a
// radio menu for direct selection.
type Module struct {
	module.Base

	conn *dbus.Conn
	log  *zap.SugaredLogger

	mu  sync.RWMutex
	cfg config.PowerProfilesConfig
}

// Factory returns the module factory for the registry. conn must be a
// system bus connection; power-profiles-daemon lives there.
func Factory(conn *dbus.Conn, log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.PowerProfiles != nil && cfg.Modules.PowerProfiles.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(conn, log, *cfg.Modules.PowerProfiles)
		},
	}
}

// New returns an unstarted power profiles module.
func New(conn *dbus.Conn, log *zap.SugaredLogger, cfg config.PowerProfilesConfig) *Module {
	return &Module{conn: conn, log: log, cfg: cfg}
}

func (m *Module) Name() string { return moduleName }

// Run polls every two seconds and republishes on change. When the
// daemon is unavailable the item list stays empty; it reappears once
// the daemon comes up.
func (m *Module) Run(ctx context.Context, mc *module.Context) {
	last, ok := m.read()
	if !ok {
		m.log.Infow("power-profiles-daemon not available")
	}
	mc.PublishItems(moduleName, itemsFor(last, ok))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, curOK := m.read()
			if cur == last && curOK == ok {
				continue
			}
			last, ok = cur, curOK
			mc.PublishItems(moduleName, itemsFor(cur, curOK))
		}
	}
}

func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if cfg.Modules.PowerProfiles == nil {
		return false
	}
	m.mu.Lock()
	m.cfg = *cfg.Modules.PowerProfiles
	m.mu.Unlock()
	return true
}

// InvokeAction cycles to the next profile. The poll loop republishes
// the new state within one interval.
func (m *Module) InvokeAction(localID, actionID string, x, y int32) error {
	switch actionID {
	case "cycle":
		st, ok := m.read()
		if !ok {
			return errors.New("power-profiles-daemon not available")
		}
		return m.setProfile(st.profile.next())
	case "context_menu":
		// Selection happens through the menu tree.
		return nil
	default:
		m.log.Debugw("unknown power profile action", "action", actionID)
		return nil
	}
}

// MenuItems returns one radio entry per profile, the active one
// checked.
func (m *Module) MenuItems(localID string) ([]menu.Node, error) {
	current := ProfileBalanced
	if st, ok := m.read(); ok {
		current = st.profile
	}
	return profileMenu(current), nil
}

// ActivateMenuItem switches to the profile the node stands for.
func (m *Module) ActivateMenuItem(localID string, nodeID int32) error {
	if nodeID < 1 || int(nodeID) > len(menuProfiles) {
		return fmt.Errorf("unknown menu entry %d", nodeID)
	}
	return m.setProfile(menuProfiles[nodeID-1])
}

func (m *Module) read() (state, bool) {
	if m.conn == nil {
		return state{}, false
	}
	object := m.conn.Object(ppdBusName, ppdPath)

	v, err := object.GetProperty(ppdInterface + ".ActiveProfile")
	if err != nil {
		return state{}, false
	}
	var active string
	if v.Store(&active) != nil {
		return state{}, false
	}

	st := state{profile: profileFromString(active)}
	if v, err := object.GetProperty(ppdInterface + ".PerformanceDegraded"); err == nil {
		v.Store(&st.degraded)
	}
	return st, true
}

func (m *Module) setProfile(p Profile) error {
	if m.conn == nil {
		return errors.New("system bus not connected")
	}
	object := m.conn.Object(ppdBusName, ppdPath)
	if err := object.SetProperty(ppdInterface+".ActiveProfile", dbus.MakeVariant(string(p))); err != nil {
		return fmt.Errorf("set power profile %s: %w", p, err)
	}
	m.log.Infow("power profile set", "profile", p.DisplayName())
	return nil
}

func itemsFor(st state, ok bool) []module.Item {
	if !ok {
		return nil
	}
	return []module.Item{makeItem(st)}
}

func makeItem(st state) module.Item {
	tooltip := "Power Profile: " + st.profile.DisplayName()
	if reason := degradedReason(st.degraded); reason != "" {
		tooltip += "\nPerformance degraded: " + reason
	}
	tooltip += "\n\nPress Enter to cycle profiles"

	return module.NewItem(moduleName, "status", st.profile.DisplayName()).
		WithIcon(st.profile.icon()).
		WithTooltip(tooltip).
		WithAction(module.DefaultAction("cycle", "Cycle Profile")).
		WithAction(module.NewAction("context_menu", "Select Profile"))
}

// degradedReason renders the daemon's PerformanceDegraded value for
// humans; unknown reasons pass through verbatim.
func degradedReason(raw string) string {
	switch raw {
	case "lap-detected":
		return "Lap detected"
	case "high-operating-temperature":
		return "High temperature"
	default:
		return raw
	}
}

func profileMenu(current Profile) []menu.Node {
	nodes := make([]menu.Node, 0, len(menuProfiles))
	for i, p := range menuProfiles {
		var on int32
		if p == current {
			on = 1
		}
		nodes = append(nodes, menu.Node{
			ID:          int32(i + 1),
			Label:       p.DisplayName(),
			Enabled:     true,
			Visible:     true,
			Type:        "standard",
			IconName:    p.icon(),
			ToggleType:  "radio",
			ToggleState: on,
		})
	}
	return nodes
}
