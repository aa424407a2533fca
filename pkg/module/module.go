// Package module defines the contract indicator modules implement and the
// registry that manages their lifecycle.
package module

import (
	"context"
	"fmt"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/menu"
	"github.com/destructatron/waytray/pkg/pubsub"
)

// Item is the normalized unit every module publishes to the panel.
type Item struct {
	// ID is "{module}:{local id}". Routing splits on the first colon
	// only, so the local id may itself contain colons.
	ID     string `json:"id"`
	Module string `json:"module"`
	Label  string `json:"label"`

	// IconName from the theme, preferred over the raw pixmap.
	IconName string `json:"icon_name,omitempty"`

	// IconPixmap is raw ARGB32 data with its dimensions.
	IconPixmap []byte `json:"icon_pixmap,omitempty"`
	IconWidth  int32  `json:"icon_width,omitempty"`
	IconHeight int32  `json:"icon_height,omitempty"`

	Tooltip string   `json:"tooltip,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// NewItem returns an Item with the id formatted from module and local id.
func NewItem(module, localID, label string) Item {
	return Item{
		ID:     fmt.Sprintf("%s:%s", module, localID),
		Module: module,
		Label:  label,
	}
}

// WithIcon sets the theme icon name.
func (i Item) WithIcon(name string) Item {
	i.IconName = name
	return i
}

// WithPixmap sets the raw icon fallback.
func (i Item) WithPixmap(width, height int32, data []byte) Item {
	i.IconWidth = width
	i.IconHeight = height
	i.IconPixmap = data
	return i
}

// WithTooltip sets the tooltip text.
func (i Item) WithTooltip(tooltip string) Item {
	i.Tooltip = tooltip
	return i
}

// WithAction appends an action.
func (i Item) WithAction(action Action) Item {
	i.Actions = append(i.Actions, action)
	return i
}

// Action is one invocable operation on an Item. At most one action per
// item should be the default.
type Action struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Default bool   `json:"is_default"`
}

// NewAction returns a non-default Action.
func NewAction(id, label string) Action {
	return Action{ID: id, Label: label}
}

// DefaultAction returns an Action marked as the item's default.
func DefaultAction(id, label string) Action {
	return Action{ID: id, Label: label, Default: true}
}

// Info is a read-only projection of a module for introspection.
type Info struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Urgency level of a desktop notification.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// EventKind tags a module Event.
type EventKind int

const (
	// EventItemsUpdated replaces one module's full item list.
	EventItemsUpdated EventKind = iota
	// EventNotification asks for a desktop notification.
	EventNotification
	// EventConfigReloaded tells consumers to refresh after a reload.
	EventConfigReloaded
)

// Event flows from modules through the registry to its consumers.
type Event struct {
	Kind   EventKind
	Module string
	Items  []Item

	Title   string
	Body    string
	Urgency Urgency
}

// Context is handed to a module's run loop for publishing items and
// notifications. Cancellation arrives through the context.Context the loop
// receives alongside it.
type Context struct {
	events *pubsub.Broadcaster[Event]
}

// NewContext returns a Context publishing into events. The registry builds
// these for the modules it starts.
func NewContext(events *pubsub.Broadcaster[Event]) *Context {
	return &Context{events: events}
}

// PublishItems atomically replaces the module's item list in the registry.
func (c *Context) PublishItems(module string, items []Item) {
	c.events.Publish(Event{Kind: EventItemsUpdated, Module: module, Items: items})
}

// Notify requests a desktop notification.
func (c *Context) Notify(title, body string, urgency Urgency) {
	c.events.Publish(Event{
		Kind:    EventNotification,
		Title:   title,
		Body:    body,
		Urgency: urgency,
	})
}

// Module is the contract every indicator worker implements. Run is the
// worker loop: it publishes items through mc and returns when ctx is
// cancelled. Long polls must race their sleep against ctx.Done() so
// cancellation latency is bounded by the poll interval.
type Module interface {
	Name() string

	Run(ctx context.Context, mc *Context)

	// Stop performs final teardown. The registry calls it after
	// cancelling Run's context; it may assume the loop has exited.
	Stop()

	// InvokeAction handles an action on one of the module's items. The
	// id is the local part, after the module prefix.
	InvokeAction(localID, actionID string, x, y int32) error

	// MenuItems returns the menu tree for an item, or ErrUnsupported.
	MenuItems(localID string) ([]menu.Node, error)

	// ActivateMenuItem clicks a node of an item's menu, or returns
	// ErrUnsupported.
	ActivateMenuItem(localID string, nodeID int32) error

	// ReloadConfig offers a new configuration to a running module and
	// reports whether it was accepted.
	ReloadConfig(cfg *config.Config) bool
}

// Base provides default implementations for the optional parts of Module.
// Embed it and override what the module actually supports.
type Base struct{}

func (Base) Stop() {}

func (Base) InvokeAction(localID, actionID string, x, y int32) error {
	return nil
}

func (Base) MenuItems(localID string) ([]menu.Node, error) {
	return nil, ErrUnsupported
}

func (Base) ActivateMenuItem(localID string, nodeID int32) error {
	return ErrUnsupported
}

func (Base) ReloadConfig(cfg *config.Config) bool {
	return false
}
