package tray

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const getProperty = "org.freedesktop.DBus.Properties.Get"

// ErrItemNotFound is returned by imperative host operations targeting an
// id the host does not track.
var ErrItemNotFound = errors.New("tray item not found")

// itemHandle tracks a single remote StatusNotifierItem: its bus object and
// the unique connection name whose disappearance retires it.
type itemHandle struct {
	id     string
	bus    string
	owner  string
	path   string
	object dbus.BusObject
}

// Host implements org.kde.StatusNotifierHost-<pid>. It registers with the
// watcher, mirrors every registered item into an ItemCache and keeps the
// mirror current by listening for the item's New* signals and for owner
// disappearance.
type Host struct {
	name    string
	conn    *dbus.Conn
	cache   *ItemCache
	log     *zap.SugaredLogger
	signals chan *dbus.Signal

	mu     sync.RWMutex
	closed bool
	// keyed by item id; byOwner groups ids under the unique name that
	// emits their signals.
	items   map[string]*itemHandle
	byOwner map[string][]string
}

// NewHost returns an unstarted Host named after id, typically the process
// pid.
func NewHost(conn *dbus.Conn, cache *ItemCache, log *zap.SugaredLogger, id any) *Host {
	return &Host{
		name:    fmt.Sprintf("%s-%v", hostBusNamePrefix, id),
		conn:    conn,
		cache:   cache,
		log:     log,
		signals: make(chan *dbus.Signal, 128),
		items:   make(map[string]*itemHandle),
		byOwner: make(map[string][]string),
	}
}

// Name returns the well-known name the host claims on the bus.
func (h *Host) Name() string {
	return h.name
}

// Listen claims the host name, registers with the watcher, subscribes to
// registration and owner-change signals and mirrors the items the watcher
// already knows about.
func (h *Host) Listen() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("listen: host is closed")
	}

	reply, err := h.conn.RequestName(h.name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("listen: request name %s: %w", h.name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("listen: name %s already taken", h.name)
	}

	call := h.conn.Object(WatcherBusName, WatcherPath).
		Call(WatcherBusName+".RegisterStatusNotifierHost", 0, h.name)
	if call.Err != nil {
		return fmt.Errorf("listen: register host: %w", call.Err)
	}

	if err := h.subscribe(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	h.addInitialItems()

	h.log.Infow("status notifier host started", "name", h.name)
	return nil
}

// Close releases the host name and drops all signal subscriptions. The
// host cannot be reused afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if _, err := h.conn.ReleaseName(h.name); err != nil {
		return err
	}

	h.conn.RemoveMatchSignal(
		dbus.WithMatchInterface(WatcherBusName),
		dbus.WithMatchMember("StatusNotifierItemRegistered"),
	)
	h.conn.RemoveMatchSignal(
		dbus.WithMatchInterface(WatcherBusName),
		dbus.WithMatchMember("StatusNotifierItemUnregistered"),
	)
	h.conn.RemoveMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	)

	for owner := range h.byOwner {
		h.removeItemMatches(owner)
	}

	h.conn.RemoveSignal(h.signals)
	close(h.signals)
	return nil
}

// Activate forwards a primary activation to the item, typically a left
// click. Coordinates are a hint for any window the item may open.
func (h *Host) Activate(id string, x, y int32) error {
	return h.call(id, "Activate", x, y)
}

// SecondaryActivate forwards a secondary activation, typically a middle
// click.
func (h *Host) SecondaryActivate(id string, x, y int32) error {
	return h.call(id, "SecondaryActivate", x, y)
}

// ContextMenu asks the item to show its own context menu at the given
// screen coordinates.
func (h *Host) ContextMenu(id string, x, y int32) error {
	return h.call(id, "ContextMenu", x, y)
}

// Scroll forwards a scroll event. Orientation is "horizontal" or
// "vertical".
func (h *Host) Scroll(id string, delta int32, orientation string) error {
	return h.call(id, "Scroll", delta, orientation)
}

func (h *Host) call(id, method string, args ...any) error {
	h.mu.RLock()
	handle, ok := h.items[id]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s %q: %w", method, id, ErrItemNotFound)
	}
	return handle.object.Call(ItemInterface+"."+method, 0, args...).Err
}

func (h *Host) subscribe() error {
	if err := h.conn.AddMatchSignal(
		dbus.WithMatchInterface(WatcherBusName),
		dbus.WithMatchMember("StatusNotifierItemRegistered"),
	); err != nil {
		return err
	}
	if err := h.conn.AddMatchSignal(
		dbus.WithMatchInterface(WatcherBusName),
		dbus.WithMatchMember("StatusNotifierItemUnregistered"),
	); err != nil {
		return err
	}
	if err := h.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		return err
	}

	h.conn.Signal(h.signals)
	go h.handleSignals()

	return nil
}

// addInitialItems mirrors the items the watcher registered before this
// host came up.
func (h *Host) addInitialItems() {
	property, err := h.conn.Object(WatcherBusName, WatcherPath).
		GetProperty(WatcherBusName + ".RegisteredStatusNotifierItems")
	if err != nil {
		return
	}

	registered, ok := property.Value().([]string)
	if !ok {
		return
	}
	for _, service := range registered {
		go h.AddItem(service)
	}
}

func (h *Host) handleSignals() {
	for signal := range h.signals {
		switch signal.Name {
		case WatcherBusName + ".StatusNotifierItemRegistered":
			if service, ok := firstString(signal); ok {
				go h.AddItem(service)
			}
		case WatcherBusName + ".StatusNotifierItemUnregistered":
			if service, ok := firstString(signal); ok {
				bus, _ := ParseService(service)
				h.removeOrigin(bus)
			}
		case "org.freedesktop.DBus.NameOwnerChanged":
			h.handleOwnerChanged(signal)
		default:
			h.handleItemSignal(signal)
		}
	}
}

func firstString(signal *dbus.Signal) (string, bool) {
	if len(signal.Body) < 1 {
		return "", false
	}
	s, ok := signal.Body[0].(string)
	return s, ok
}

func (h *Host) handleOwnerChanged(signal *dbus.Signal) {
	if len(signal.Body) < 3 {
		return
	}
	name, ok := signal.Body[0].(string)
	if !ok {
		return
	}
	newOwner, ok := signal.Body[2].(string)
	if !ok || newOwner != "" {
		return
	}
	h.removeOrigin(name)
}

// AddItem resolves a service descriptor, reads the item's current
// properties into the cache and subscribes to its update signals. Items
// that cannot be reached on the bus are skipped.
//
// All bus calls happen outside h.mu: a hung peer may stall its own
// discovery goroutine but never the other items.
func (h *Host) AddItem(service string) {
	bus, path := ParseService(service)
	id := bus + path

	h.mu.RLock()
	closed := h.closed
	_, exists := h.items[id]
	h.mu.RUnlock()
	if closed || exists {
		return
	}

	object := h.conn.Object(bus, dbus.ObjectPath(path))
	if call := object.Call(getProperty, 0, ItemInterface, "Status"); call.Err != nil {
		h.log.Warnw("item does not respond, skipping", "service", service, "error", call.Err)
		return
	}

	// Signals from the item carry its unique connection name even when it
	// registered under a well-known one.
	owner := bus
	if err := h.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, bus).Store(&owner); err != nil {
		owner = bus
	}

	handle := &itemHandle{id: id, bus: bus, owner: owner, path: path, object: object}
	if !h.insertHandle(handle) {
		return
	}
	h.addItemMatches(owner)

	h.cache.Upsert(h.readItem(handle))

	// The owner may have vanished while the properties were read; that
	// removal already consumed its NameOwnerChanged, so the cache entry
	// has to be retracted here.
	if !h.confirmAdded(id) {
		return
	}
	h.log.Infow("item added", "id", id)
}

// insertHandle links the handle into the item and owner maps unless the
// host closed or another goroutine won the race.
func (h *Host) insertHandle(handle *itemHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if _, exists := h.items[handle.id]; exists {
		return false
	}
	h.items[handle.id] = handle
	h.byOwner[handle.owner] = append(h.byOwner[handle.owner], handle.id)
	return true
}

// confirmAdded reports whether the item survived its own discovery; when
// a racing removal took the handle, the cache entry is dropped too.
func (h *Host) confirmAdded(id string) bool {
	h.mu.RLock()
	_, live := h.items[id]
	h.mu.RUnlock()

	if !live {
		h.cache.Remove(id)
	}
	return live
}

// removeOrigin drops every item owned by the given bus name, whether it
// vanished from the bus or was unregistered by the watcher.
func (h *Host) removeOrigin(bus string) {
	owner, ids := h.dropOrigin(bus)
	if len(ids) == 0 {
		return
	}
	h.removeItemMatches(owner)

	for _, id := range ids {
		if _, ok := h.cache.Remove(id); ok {
			h.log.Infow("item removed", "id", id)
		}
	}
}

// dropOrigin unlinks every handle under the owner the bus name resolves
// to and returns the owner with the unlinked item ids.
func (h *Host) dropOrigin(bus string) (string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owner := bus
	if ids, ok := h.byOwner[bus]; !ok || len(ids) == 0 {
		// The signal may carry the well-known name; resolve handles
		// registered under it.
		for _, handle := range h.items {
			if handle.bus == bus {
				owner = handle.owner
				break
			}
		}
	}
	ids := h.byOwner[owner]
	if len(ids) == 0 {
		return owner, nil
	}
	delete(h.byOwner, owner)
	for _, id := range ids {
		delete(h.items, id)
	}
	return owner, ids
}

// readItem takes a full snapshot of the remote item's properties. Missing
// or malformed properties fall back to zero values; only Status must be
// readable, which AddItem already verified.
func (h *Host) readItem(handle *itemHandle) Item {
	item := Item{
		ID:         handle.id,
		BusName:    handle.bus,
		ObjectPath: handle.path,
		Status:     StatusActive,
		Category:   CategoryApplicationStatus,
	}

	if v, err := handle.object.GetProperty(ItemInterface + ".Title"); err == nil {
		v.Store(&item.Title)
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".Status"); err == nil {
		var s string
		if v.Store(&s) == nil {
			item.Status = StatusFromString(s)
		}
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".Category"); err == nil {
		var s string
		if v.Store(&s) == nil {
			item.Category = CategoryFromString(s)
		}
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".IconName"); err == nil {
		v.Store(&item.IconName)
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".IconPixmap"); err == nil {
		item.Icon = LargestIcon(v.Value())
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".ToolTip"); err == nil {
		item.Tooltip = tooltipText(v.Value())
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".ItemIsMenu"); err == nil {
		v.Store(&item.ItemIsMenu)
	}
	if v, err := handle.object.GetProperty(ItemInterface + ".Menu"); err == nil {
		var p dbus.ObjectPath
		if v.Store(&p) == nil && p != "" && p != "/" {
			item.HasMenu = true
			item.MenuPath = string(p)
		}
	}

	return item
}

// tooltipText extracts readable text from the structured ToolTip property
// (icon-name, icon, title, description): the title when present, the
// description otherwise.
func tooltipText(value any) string {
	fields, ok := value.([]any)
	if !ok {
		return ""
	}
	if len(fields) >= 3 {
		if title, ok := fields[2].(string); ok && title != "" {
			return title
		}
	}
	if len(fields) >= 4 {
		if desc, ok := fields[3].(string); ok {
			return desc
		}
	}
	return ""
}

// handleItemSignal routes a New* property-change signal to a scoped cache
// update for every item owned by the sending connection.
func (h *Host) handleItemSignal(signal *dbus.Signal) {
	h.mu.RLock()
	ids := h.byOwner[string(signal.Sender)]
	handles := make([]*itemHandle, 0, len(ids))
	for _, id := range ids {
		if handle, ok := h.items[id]; ok {
			handles = append(handles, handle)
		}
	}
	h.mu.RUnlock()

	for _, handle := range handles {
		switch signal.Name {
		case ItemInterface + ".NewTitle":
			if v, err := handle.object.GetProperty(ItemInterface + ".Title"); err == nil {
				var title string
				if v.Store(&title) == nil {
					h.cache.UpdateTitle(handle.id, title)
				}
			}
		case ItemInterface + ".NewStatus":
			if v, err := handle.object.GetProperty(ItemInterface + ".Status"); err == nil {
				var s string
				if v.Store(&s) == nil {
					h.cache.UpdateStatus(handle.id, StatusFromString(s))
				}
			}
		case ItemInterface + ".NewToolTip":
			if v, err := handle.object.GetProperty(ItemInterface + ".ToolTip"); err == nil {
				h.cache.UpdateTooltip(handle.id, tooltipText(v.Value()))
			}
		case ItemInterface + ".NewIcon", ItemInterface + ".NewAttentionIcon":
			name := ""
			if v, err := handle.object.GetProperty(ItemInterface + ".IconName"); err == nil {
				v.Store(&name)
			}
			var icon *Icon
			if v, err := handle.object.GetProperty(ItemInterface + ".IconPixmap"); err == nil {
				icon = LargestIcon(v.Value())
			}
			h.cache.UpdateIcon(handle.id, name, icon)
		}
	}
}

func (h *Host) addItemMatches(owner string) {
	for _, member := range itemSignalMembers {
		h.conn.AddMatchSignal(
			dbus.WithMatchInterface(ItemInterface),
			dbus.WithMatchMember(member),
			dbus.WithMatchSender(owner),
		)
	}
}

func (h *Host) removeItemMatches(owner string) {
	for _, member := range itemSignalMembers {
		h.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(ItemInterface),
			dbus.WithMatchMember(member),
			dbus.WithMatchSender(owner),
		)
	}
}

var itemSignalMembers = []string{
	"NewTitle",
	"NewToolTip",
	"NewStatus",
	"NewIcon",
	"NewAttentionIcon",
}
