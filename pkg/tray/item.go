// Package tray implements the StatusNotifierItem host side: a watcher for
// item registration, a host that mirrors item state into a cache, and the
// item model shared by both.
//
// https://www.freedesktop.org/wiki/Specifications/StatusNotifierItem/
package tray

import (
	"strings"
)

const (
	WatcherBusName = "org.kde.StatusNotifierWatcher"
	WatcherPath    = "/StatusNotifierWatcher"

	ItemInterface   = "org.kde.StatusNotifierItem"
	DefaultItemPath = "/StatusNotifierItem"

	hostBusNamePrefix = "org.kde.StatusNotifierHost"
)

// Status of a tray item.
type Status string

const (
	// StatusPassive items convey no important information and may be hidden.
	StatusPassive Status = "Passive"

	// StatusActive items should be shown.
	StatusActive Status = "Active"

	// StatusNeedsAttention items carry important information, such as low
	// battery, and should be emphasized.
	StatusNeedsAttention Status = "NeedsAttention"
)

// StatusFromString maps the wire value onto a Status, defaulting to Active.
func StatusFromString(s string) Status {
	switch strings.ToLower(s) {
	case "passive":
		return StatusPassive
	case "needsattention", "needs-attention":
		return StatusNeedsAttention
	default:
		return StatusActive
	}
}

// Category of a tray item.
type Category string

const (
	CategoryApplicationStatus Category = "ApplicationStatus"
	CategoryCommunications    Category = "Communications"
	CategorySystemServices    Category = "SystemServices"
	CategoryHardware          Category = "Hardware"
)

// CategoryFromString maps the wire value onto a Category, defaulting to
// ApplicationStatus.
func CategoryFromString(s string) Category {
	switch strings.ToLower(s) {
	case "communications":
		return CategoryCommunications
	case "systemservices", "system-services":
		return CategorySystemServices
	case "hardware":
		return CategoryHardware
	default:
		return CategoryApplicationStatus
	}
}

// Icon is a raw ARGB32 pixmap published by an item that carries no theme
// icon name.
type Icon struct {
	Width  int32
	Height int32
	Bytes  []byte
}

// Item is one entry of the system tray as mirrored into the ItemCache.
type Item struct {
	// ID uniquely identifies the item; it is the service descriptor the
	// item registered under (bus name, possibly followed by object path).
	ID string

	// BusName and ObjectPath locate the item's StatusNotifierItem object.
	BusName    string
	ObjectPath string

	Title    string
	Tooltip  string
	Status   Status
	Category Category

	// IconName is the freedesktop theme icon, preferred over Icon.
	IconName string
	// Icon is the raw pixmap fallback.
	Icon *Icon

	// HasMenu reports whether the item exposes a com.canonical.dbusmenu
	// object at MenuPath.
	HasMenu  bool
	MenuPath string

	// ItemIsMenu means activation should open the menu instead.
	ItemIsMenu bool
}

// ParseService splits a StatusNotifierItem service descriptor into bus name
// and object path. Descriptors come in four forms:
//
//	:1.90/StatusNotifierItem                          unique name + path
//	:1.75/org/ayatana/NotificationItem/spotify_client unique name + long path
//	org.kde.StatusNotifierItem-1234-1                 well-known name
//	org.kde.StatusNotifierItem-1234-1:/StatusNotifierItem
//
// When no path is present, the protocol default /StatusNotifierItem is used.
func ParseService(service string) (busName, objectPath string) {
	if strings.HasPrefix(service, ":") {
		if idx := strings.Index(service, "/"); idx >= 0 {
			return service[:idx], service[idx:]
		}
		return service, DefaultItemPath
	}

	if name, path, ok := strings.Cut(service, ":/"); ok {
		return name, "/" + path
	}
	if idx := strings.Index(service, "/"); idx >= 0 {
		return service[:idx], service[idx:]
	}
	return service, DefaultItemPath
}

// LargestIcon picks the pixmap with the greatest area from a decoded
// a(iiay) property value. Returns nil if no usable pixmap is present.
func LargestIcon(value any) *Icon {
	variants, ok := value.([][]any)
	if !ok {
		// Some implementations deliver the outer array as []any.
		outer, ok := value.([]any)
		if !ok {
			return nil
		}
		variants = make([][]any, 0, len(outer))
		for _, v := range outer {
			if inner, ok := v.([]any); ok {
				variants = append(variants, inner)
			}
		}
	}

	var best *Icon
	for _, v := range variants {
		if len(v) != 3 {
			continue
		}
		width, ok := v[0].(int32)
		if !ok {
			continue
		}
		height, ok := v[1].(int32)
		if !ok {
			continue
		}
		bytes, ok := v[2].([]byte)
		if !ok {
			continue
		}
		if best == nil || width*height > best.Width*best.Height {
			best = &Icon{Width: width, Height: height, Bytes: bytes}
		}
	}
	return best
}
