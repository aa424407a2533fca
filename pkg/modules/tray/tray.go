// Package tray wraps the StatusNotifierItem watcher/host pair as a panel
// module.
package tray

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/menu"
	"github.com/destructatron/waytray/pkg/module"
	sni "github.com/destructatron/waytray/pkg/tray"
)

const moduleName = "tray"

// Module mirrors every registered status notifier item into the panel.
type Module struct {
	module.Base

	conn  *dbus.Conn
	log   *zap.SugaredLogger
	menus *menu.Client

	mu      sync.RWMutex
	cache   *sni.ItemCache
	watcher *sni.Watcher
	host    *sni.Host
}

// Factory returns the module factory for the registry.
func Factory(conn *dbus.Conn, log *zap.SugaredLogger) module.Factory {
	return FactoryFor(New(conn, log))
}

// FactoryFor wraps an existing module so the same instance survives
// enable/disable cycles and stays reachable for the flat item queries
// the bus service answers.
func FactoryFor(m *Module) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.Tray.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return m
		},
	}
}

// New returns an unstarted tray module.
func New(conn *dbus.Conn, log *zap.SugaredLogger) *Module {
	return &Module{
		conn:  conn,
		log:   log,
		menus: menu.NewClient(conn, log),
	}
}

func (m *Module) Name() string { return moduleName }

// Run starts the watcher (unless another process already provides one)
// and the host, then republishes the full converted item list on every
// cache change until cancelled.
func (m *Module) Run(ctx context.Context, mc *module.Context) {
	cache := sni.NewItemCache()

	var watcher *sni.Watcher
	if !sni.ExternalWatcherExists(m.conn) {
		watcher = sni.NewWatcher(m.conn, m.log)
		if err := watcher.Listen(); err != nil {
			// Most likely lost a startup race with another watcher.
			m.log.Warnw("could not start watcher, assuming external one", "error", err)
			watcher = nil
		}
	}

	host := sni.NewHost(m.conn, cache, m.log, os.Getpid())
	if err := host.Listen(); err != nil {
		m.log.Errorw("could not start status notifier host", "error", err)
		if watcher != nil {
			watcher.Close()
		}
		cache.Close()
		mc.PublishItems(moduleName, nil)
		return
	}

	m.mu.Lock()
	m.cache = cache
	m.watcher = watcher
	m.host = host
	m.mu.Unlock()

	sub := cache.Subscribe()
	mc.PublishItems(moduleName, convertAll(cache))

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C:
			if !ok {
				return
			}
			// Full resync on every event; lagged subscriptions lose
			// nothing this way.
			mc.PublishItems(moduleName, convertAll(cache))
		}
	}
}

// Stop tears down the host, watcher and cache after the run loop exited.
func (m *Module) Stop() {
	m.mu.Lock()
	cache, watcher, host := m.cache, m.watcher, m.host
	m.cache, m.watcher, m.host = nil, nil, nil
	m.mu.Unlock()

	if host != nil {
		host.Close()
	}
	if watcher != nil {
		watcher.Close()
	}
	if cache != nil {
		cache.Close()
	}
}

// InvokeAction forwards an action to the originating item.
func (m *Module) InvokeAction(localID, actionID string, x, y int32) error {
	m.mu.RLock()
	host := m.host
	m.mu.RUnlock()

	if host == nil {
		return fmt.Errorf("tray host not running: %w", module.ErrNotFound)
	}

	switch actionID {
	case "activate":
		return host.Activate(localID, x, y)
	case "secondary_activate":
		return host.SecondaryActivate(localID, x, y)
	case "context_menu":
		return host.ContextMenu(localID, x, y)
	case "scroll_up":
		return host.Scroll(localID, -1, "vertical")
	case "scroll_down":
		return host.Scroll(localID, 1, "vertical")
	default:
		return fmt.Errorf("unknown tray action %q", actionID)
	}
}

// MenuItems fetches the dbusmenu tree of the item.
func (m *Module) MenuItems(localID string) ([]menu.Node, error) {
	item, err := m.menuTarget(localID)
	if err != nil {
		return nil, err
	}
	return m.menus.Fetch(item.BusName, item.MenuPath)
}

// ActivateMenuItem clicks one node of the item's menu.
func (m *Module) ActivateMenuItem(localID string, nodeID int32) error {
	item, err := m.menuTarget(localID)
	if err != nil {
		return err
	}
	return m.menus.Activate(item.BusName, item.MenuPath, nodeID)
}

func (m *Module) menuTarget(localID string) (sni.Item, error) {
	m.mu.RLock()
	cache := m.cache
	m.mu.RUnlock()

	if cache == nil {
		return sni.Item{}, fmt.Errorf("tray host not running: %w", module.ErrNotFound)
	}
	item, ok := cache.Get(localID)
	if !ok {
		return sni.Item{}, fmt.Errorf("item %q: %w", localID, module.ErrNotFound)
	}
	if !item.HasMenu {
		return sni.Item{}, fmt.Errorf("item %q has no menu: %w", localID, module.ErrUnsupported)
	}
	return item, nil
}

// TrayItems returns a snapshot of the raw status notifier items.
func (m *Module) TrayItems() []sni.Item {
	m.mu.RLock()
	cache := m.cache
	m.mu.RUnlock()

	if cache == nil {
		return nil
	}
	return cache.All()
}

// TrayItem looks up one raw status notifier item by cache id.
func (m *Module) TrayItem(id string) (sni.Item, bool) {
	m.mu.RLock()
	cache := m.cache
	m.mu.RUnlock()

	if cache == nil {
		return sni.Item{}, false
	}
	return cache.Get(id)
}

// Scroll forwards a scroll event with an explicit delta and orientation.
func (m *Module) Scroll(localID string, delta int32, orientation string) error {
	m.mu.RLock()
	host := m.host
	m.mu.RUnlock()

	if host == nil {
		return fmt.Errorf("tray host not running: %w", module.ErrNotFound)
	}
	return host.Scroll(localID, delta, orientation)
}

// ReloadConfig accepts any configuration; the tray module has no tunables
// beyond its enabled flag.
func (m *Module) ReloadConfig(cfg *config.Config) bool {
	return true
}

func convertAll(cache *sni.ItemCache) []module.Item {
	trayItems := cache.All()
	items := make([]module.Item, 0, len(trayItems))
	for _, item := range trayItems {
		items = append(items, convert(item))
	}
	return items
}

// convert maps a cached indicator item onto the panel item shape.
// Menu-only items get context_menu as their default action; regular items
// default to activate.
func convert(item sni.Item) module.Item {
	out := module.NewItem(moduleName, item.ID, item.Title).WithTooltip(item.Tooltip)
	out.IconName = item.IconName
	if item.Icon != nil {
		out = out.WithPixmap(item.Icon.Width, item.Icon.Height, item.Icon.Bytes)
	}

	if item.ItemIsMenu {
		out = out.WithAction(module.DefaultAction("context_menu", "Show Menu"))
		return out
	}

	out = out.WithAction(module.DefaultAction("activate", "Activate"))
	out = out.WithAction(module.NewAction("secondary_activate", "Secondary Action"))
	if item.HasMenu {
		out = out.WithAction(module.NewAction("context_menu", "Show Menu"))
	}
	return out
}
