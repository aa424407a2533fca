// Package menu fetches and activates application menus exposed over the
// com.canonical.dbusmenu interface.
package menu

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const Interface = "com.canonical.dbusmenu"

// MaxDepth bounds menu nesting. The root layout node sits at depth 0; a
// tree nested deeper than MaxDepth fails the whole fetch rather than being
// truncated, so a malicious menu cannot silently lose entries.
const MaxDepth = 10

// ErrDepthExceeded is returned by Fetch when the menu tree nests deeper
// than MaxDepth.
var ErrDepthExceeded = errors.New("menu depth exceeds maximum")

// Node is one entry of a menu tree. The root node returned by the
// application is not included; Fetch returns its children.
type Node struct {
	ID      int32  `json:"id"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
	Visible bool   `json:"visible"`

	// Type is "standard" or "separator".
	Type string `json:"type"`

	IconName string `json:"icon_name,omitempty"`

	// ToggleType is "checkmark", "radio" or empty.
	ToggleType string `json:"toggle_type,omitempty"`

	// ToggleState is -1 (off), 0 (indeterminate) or 1 (on).
	ToggleState int32 `json:"toggle_state"`

	Children []Node `json:"children,omitempty"`
}

// layoutProperties are the node properties requested from GetLayout.
var layoutProperties = []string{
	"label",
	"enabled",
	"visible",
	"type",
	"icon-name",
	"toggle-type",
	"toggle-state",
	"children-display",
}

// Client fetches menus from remote applications.
type Client struct {
	conn *dbus.Conn
	log  *zap.SugaredLogger
}

// NewClient returns a Client on the given bus connection.
func NewClient(conn *dbus.Conn, log *zap.SugaredLogger) *Client {
	return &Client{conn: conn, log: log}
}

// Fetch retrieves the complete menu tree of the dbusmenu object at
// busName/menuPath. Invisible entries are dropped together with their
// subtrees.
func (c *Client) Fetch(busName, menuPath string) ([]Node, error) {
	object := c.conn.Object(busName, dbus.ObjectPath(menuPath))

	// Let the application prepare the menu. Failures are fine; many apps
	// do not implement AboutToShow.
	if call := object.Call(Interface+".AboutToShow", 0, int32(0)); call.Err != nil {
		c.log.Debugw("about to show failed", "bus", busName, "error", call.Err)
	}

	call := object.Call(Interface+".GetLayout", 0, int32(0), int32(-1), layoutProperties)
	if call.Err != nil {
		return nil, fmt.Errorf("get layout %s%s: %w", busName, menuPath, call.Err)
	}
	if len(call.Body) != 2 {
		return nil, fmt.Errorf("get layout %s%s: unexpected response shape", busName, menuPath)
	}

	root, err := parseNode(call.Body[1], 0)
	if err != nil {
		return nil, fmt.Errorf("parse layout %s%s: %w", busName, menuPath, err)
	}

	// The root node itself is never displayed.
	return root.Children, nil
}

// Activate sends a "clicked" event to the menu entry with the given id.
func (c *Client) Activate(busName, menuPath string, id int32) error {
	object := c.conn.Object(busName, dbus.ObjectPath(menuPath))

	timestamp := uint32(time.Now().Unix())
	call := object.Call(Interface+".Event", 0, id, "clicked", dbus.MakeVariant(int32(0)), timestamp)
	if call.Err != nil {
		return fmt.Errorf("activate menu item %d on %s%s: %w", id, busName, menuPath, call.Err)
	}
	return nil
}

// parseNode decodes one (id, properties, children) layout struct. Any node
// deeper than MaxDepth aborts the parse.
func parseNode(data any, depth int) (Node, error) {
	if depth > MaxDepth {
		return Node{}, ErrDepthExceeded
	}

	fields, ok := data.([]any)
	if !ok || len(fields) != 3 {
		return Node{}, fmt.Errorf("invalid layout node format")
	}

	id, ok := fields[0].(int32)
	if !ok {
		return Node{}, fmt.Errorf("invalid layout node id")
	}

	props, ok := fields[1].(map[string]dbus.Variant)
	if !ok {
		return Node{}, fmt.Errorf("invalid layout node properties")
	}

	node := Node{
		ID:          id,
		Enabled:     true,
		Visible:     true,
		Type:        "standard",
		ToggleState: -1,
	}

	if label, ok := stringProp(props, "label"); ok {
		node.Label = stripMnemonic(label)
	}
	if enabled, ok := boolProp(props, "enabled"); ok {
		node.Enabled = enabled
	}
	if visible, ok := boolProp(props, "visible"); ok {
		node.Visible = visible
	}
	if kind, ok := stringProp(props, "type"); ok && kind != "" {
		node.Type = kind
	}
	if icon, ok := stringProp(props, "icon-name"); ok {
		node.IconName = icon
	}
	if toggle, ok := stringProp(props, "toggle-type"); ok {
		node.ToggleType = toggle
	}
	if state, ok := props["toggle-state"]; ok {
		if v, ok := state.Value().(int32); ok {
			node.ToggleState = v
		}
	}

	children, ok := fields[2].([]dbus.Variant)
	if !ok {
		return Node{}, fmt.Errorf("invalid layout node children")
	}
	for _, child := range children {
		childNode, err := parseNode(child.Value(), depth+1)
		if err != nil {
			return Node{}, err
		}
		if !childNode.Visible {
			continue
		}
		node.Children = append(node.Children, childNode)
	}

	return node, nil
}

func stringProp(props map[string]dbus.Variant, key string) (string, bool) {
	variant, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := variant.Value().(string)
	return s, ok
}

func boolProp(props map[string]dbus.Variant, key string) (bool, bool) {
	variant, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := variant.Value().(bool)
	return b, ok
}

// stripMnemonic removes the underscore accelerator markers GTK embeds in
// menu labels ("_File" reads "File").
func stripMnemonic(label string) string {
	return strings.ReplaceAll(label, "_", "")
}
