package tray

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"go.uber.org/zap"
)

// Watcher implements org.kde.StatusNotifierWatcher: it tracks registered
// StatusNotifierItem services and host presence, and broadcasts
// registration changes as bus signals.
//
// Only one watcher may own the well-known name per session bus; use
// ExternalWatcherExists before starting one.
type Watcher struct {
	conn    *dbus.Conn
	log     *zap.SugaredLogger
	signals chan *dbus.Signal

	mu     sync.Mutex
	closed bool
	items  []string
	hosts  []string
}

// ExternalWatcherExists reports whether another process already owns the
// StatusNotifierWatcher name on conn's bus.
func ExternalWatcherExists(conn *dbus.Conn) bool {
	var owned bool
	err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, WatcherBusName).Store(&owned)
	return err == nil && owned
}

// NewWatcher returns an unstarted Watcher.
func NewWatcher(conn *dbus.Conn, log *zap.SugaredLogger) *Watcher {
	return &Watcher{
		conn:    conn,
		log:     log,
		signals: make(chan *dbus.Signal, 64),
	}
}

// Listen claims the watcher well-known name, exports the interface and
// starts tracking name-owner changes. It fails if another watcher owns the
// name.
func (w *Watcher) Listen() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("listen: watcher is closed")
	}

	reply, err := w.conn.RequestName(WatcherBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("listen: request name %s: %w", WatcherBusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("listen: name %s already taken", WatcherBusName)
	}

	if err := w.conn.Export(w, WatcherPath, WatcherBusName); err != nil {
		return fmt.Errorf("listen: export %s: %w", WatcherBusName, err)
	}
	w.exportProperties()

	go w.watchNameOwners()

	w.log.Infow("status notifier watcher started", "name", WatcherBusName)
	return nil
}

// Close releases the well-known name and stops signal handling. The
// watcher cannot be reused afterwards.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.conn.ReleaseName(WatcherBusName); err != nil {
		return err
	}

	for _, name := range w.hosts {
		w.removeOwnerMatch(name)
	}
	for _, item := range w.items {
		name, _ := ParseService(item)
		w.removeOwnerMatch(name)
	}

	w.conn.RemoveSignal(w.signals)
	close(w.signals)
	return nil
}

// RegisterStatusNotifierItem registers a tray item. A bare object path is
// qualified with the sender's unique bus name, which the transport
// supplies and the caller cannot forge; a bus name is stored verbatim.
func (w *Watcher) RegisterStatusNotifierItem(service string, sender dbus.Sender) *dbus.Error {
	w.mu.Lock()
	defer w.mu.Unlock()

	identifier := qualifyService(service, string(sender))

	if slices.Contains(w.items, identifier) {
		return nil
	}
	w.items = append(w.items, identifier)
	w.log.Infow("item registered", "service", identifier)

	name, _ := ParseService(identifier)
	w.addOwnerMatch(name)

	w.conn.Emit(dbus.ObjectPath(WatcherPath), WatcherBusName+".StatusNotifierItemRegistered", identifier)
	w.exportProperties()
	return nil
}

// qualifyService resolves the descriptor an item registered under. A bare
// object path belongs to the sending connection, so it is prefixed with
// the sender's unique name; anything else is taken verbatim.
func qualifyService(service, sender string) string {
	if strings.HasPrefix(service, "/") {
		return sender + service
	}
	return service
}

// RegisterStatusNotifierHost registers a consuming host by name.
func (w *Watcher) RegisterStatusNotifierHost(service string) *dbus.Error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if slices.Contains(w.hosts, service) {
		return nil
	}
	w.hosts = append(w.hosts, service)
	w.log.Infow("host registered", "service", service)

	w.addOwnerMatch(service)

	w.conn.Emit(dbus.ObjectPath(WatcherPath), WatcherBusName+".StatusNotifierHostRegistered", service)
	w.exportProperties()
	return nil
}

// RegisteredItems returns the currently registered item identifiers.
func (w *Watcher) RegisteredItems() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.items)
}

// HostRegistered reports whether at least one host is registered.
func (w *Watcher) HostRegistered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.hosts) > 0
}

// watchNameOwners unregisters items and hosts whose owning connection
// disappears from the bus. Items cannot unregister themselves through a
// method call; this is the only unregistration path.
func (w *Watcher) watchNameOwners() {
	w.conn.Signal(w.signals)

	for signal := range w.signals {
		if signal.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(signal.Body) < 3 {
			continue
		}
		name, ok := signal.Body[0].(string)
		if !ok {
			continue
		}
		newOwner, ok := signal.Body[2].(string)
		if !ok || newOwner != "" {
			continue
		}
		w.unregisterHost(name)
		w.unregisterItems(name)
	}
}

func (w *Watcher) unregisterHost(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := slices.Index(w.hosts, name)
	if idx < 0 {
		return
	}
	w.hosts = slices.Delete(w.hosts, idx, idx+1)
	w.removeOwnerMatch(name)
	w.log.Infow("host unregistered", "service", name)
	w.exportProperties()
}

func (w *Watcher) unregisterItems(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var kept []string
	for _, item := range w.items {
		itemName, _ := ParseService(item)
		if itemName != name {
			kept = append(kept, item)
			continue
		}
		w.log.Infow("item unregistered", "service", item)
		w.conn.Emit(dbus.ObjectPath(WatcherPath), WatcherBusName+".StatusNotifierItemUnregistered", item)
	}
	if len(kept) == len(w.items) {
		return
	}
	w.items = kept
	w.removeOwnerMatch(name)
	w.exportProperties()
}

func (w *Watcher) addOwnerMatch(name string) {
	w.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, name),
	)
}

func (w *Watcher) removeOwnerMatch(name string) {
	w.conn.RemoveMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, name),
	)
}

func (w *Watcher) exportProperties() {
	prop.Export(w.conn, WatcherPath, prop.Map{
		WatcherBusName: map[string]*prop.Prop{
			"RegisteredStatusNotifierItems": {
				Value:    slices.Clone(w.items),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"IsStatusNotifierHostRegistered": {
				Value:    len(w.hosts) > 0,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"ProtocolVersion": {
				Value:    int32(0),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	})
}
