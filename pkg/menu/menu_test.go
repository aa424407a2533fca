package menu

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layoutNode(id int32, props map[string]dbus.Variant, children ...any) []any {
	if props == nil {
		props = map[string]dbus.Variant{}
	}
	wrapped := make([]dbus.Variant, len(children))
	for i, child := range children {
		wrapped[i] = dbus.MakeVariant(child)
	}
	return []any{id, props, wrapped}
}

// chain builds a root whose single descendant path is depth levels deep.
func chain(depth int) []any {
	node := layoutNode(int32(depth), nil)
	for i := depth - 1; i >= 0; i-- {
		node = layoutNode(int32(i), nil, node)
	}
	return node
}

func TestParseNodeDefaults(t *testing.T) {
	node, err := parseNode(layoutNode(7, nil), 0)
	require.NoError(t, err)

	assert.Equal(t, int32(7), node.ID)
	assert.True(t, node.Enabled)
	assert.True(t, node.Visible)
	assert.Equal(t, "standard", node.Type)
	assert.Equal(t, int32(-1), node.ToggleState)
	assert.Empty(t, node.Children)
}

func TestParseNodeProperties(t *testing.T) {
	props := map[string]dbus.Variant{
		"label":        dbus.MakeVariant("Save _As..."),
		"enabled":      dbus.MakeVariant(false),
		"type":         dbus.MakeVariant("separator"),
		"icon-name":    dbus.MakeVariant("document-save"),
		"toggle-type":  dbus.MakeVariant("checkmark"),
		"toggle-state": dbus.MakeVariant(int32(1)),
	}

	node, err := parseNode(layoutNode(3, props), 0)
	require.NoError(t, err)

	assert.Equal(t, "Save As...", node.Label)
	assert.False(t, node.Enabled)
	assert.Equal(t, "separator", node.Type)
	assert.Equal(t, "document-save", node.IconName)
	assert.Equal(t, "checkmark", node.ToggleType)
	assert.Equal(t, int32(1), node.ToggleState)
}

func TestParseNodeDepthLimit(t *testing.T) {
	t.Run("depth ten parses", func(t *testing.T) {
		root, err := parseNode(chain(MaxDepth), 0)
		require.NoError(t, err)

		depth := 0
		for node := root; len(node.Children) > 0; node = node.Children[0] {
			depth++
		}
		assert.Equal(t, MaxDepth, depth)
	})

	t.Run("depth eleven fails the whole parse", func(t *testing.T) {
		_, err := parseNode(chain(MaxDepth+1), 0)
		assert.ErrorIs(t, err, ErrDepthExceeded)
	})
}

func TestParseNodeDropsInvisibleSubtrees(t *testing.T) {
	hidden := layoutNode(2,
		map[string]dbus.Variant{"visible": dbus.MakeVariant(false)},
		layoutNode(3, map[string]dbus.Variant{"label": dbus.MakeVariant("buried")}),
	)
	shown := layoutNode(4, map[string]dbus.Variant{"label": dbus.MakeVariant("shown")})

	root, err := parseNode(layoutNode(0, nil, hidden, shown), 0)
	require.NoError(t, err)

	require.Len(t, root.Children, 1)
	assert.Equal(t, int32(4), root.Children[0].ID)
	assert.Equal(t, "shown", root.Children[0].Label)
}

func TestParseNodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data any
	}{
		{"not an array", "bogus"},
		{"wrong arity", []any{int32(1), map[string]dbus.Variant{}}},
		{"bad id", []any{"1", map[string]dbus.Variant{}, []dbus.Variant{}}},
		{"bad properties", []any{int32(1), "props", []dbus.Variant{}}},
		{"bad children", []any{int32(1), map[string]dbus.Variant{}, "kids"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseNode(tc.data, 0)
			assert.Error(t, err)
		})
	}
}

func TestStripMnemonic(t *testing.T) {
	assert.Equal(t, "File", stripMnemonic("_File"))
	assert.Equal(t, "Save As...", stripMnemonic("Save _As..."))
	assert.Equal(t, "Quit", stripMnemonic("Quit"))
}
