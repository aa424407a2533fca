package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseService(t *testing.T) {
	cases := []struct {
		name    string
		service string
		bus     string
		path    string
	}{
		{
			name:    "unique name with default path",
			service: ":1.90/StatusNotifierItem",
			bus:     ":1.90",
			path:    "/StatusNotifierItem",
		},
		{
			name:    "unique name with nested path",
			service: ":1.75/org/ayatana/NotificationItem/nm_applet",
			bus:     ":1.75",
			path:    "/org/ayatana/NotificationItem/nm_applet",
		},
		{
			name:    "well-known name without path",
			service: "org.kde.StatusNotifierItem-1234-1",
			bus:     "org.kde.StatusNotifierItem-1234-1",
			path:    "/StatusNotifierItem",
		},
		{
			name:    "well-known name with explicit path",
			service: "org.kde.StatusNotifierItem-1234-1:/StatusNotifierItem",
			bus:     "org.kde.StatusNotifierItem-1234-1",
			path:    "/StatusNotifierItem",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus, path := ParseService(tc.service)
			assert.Equal(t, tc.bus, bus)
			assert.Equal(t, tc.path, path)
		})
	}
}

func TestStatusFromString(t *testing.T) {
	assert.Equal(t, StatusPassive, StatusFromString("Passive"))
	assert.Equal(t, StatusNeedsAttention, StatusFromString("NeedsAttention"))
	assert.Equal(t, StatusNeedsAttention, StatusFromString("needs-attention"))
	assert.Equal(t, StatusActive, StatusFromString("Active"))

	t.Run("unknown defaults to active", func(t *testing.T) {
		assert.Equal(t, StatusActive, StatusFromString("garbage"))
		assert.Equal(t, StatusActive, StatusFromString(""))
	})
}

func TestLargestIcon(t *testing.T) {
	t.Run("picks greatest area", func(t *testing.T) {
		value := [][]any{
			{int32(16), int32(16), make([]byte, 16*16*4)},
			{int32(48), int32(48), make([]byte, 48*48*4)},
			{int32(22), int32(22), make([]byte, 22*22*4)},
		}

		icon := LargestIcon(value)
		require.NotNil(t, icon)
		assert.Equal(t, int32(48), icon.Width)
		assert.Equal(t, int32(48), icon.Height)
		assert.Len(t, icon.Bytes, 48*48*4)
	})

	t.Run("accepts untyped outer array", func(t *testing.T) {
		value := []any{
			[]any{int32(24), int32(24), make([]byte, 24*24*4)},
		}

		icon := LargestIcon(value)
		require.NotNil(t, icon)
		assert.Equal(t, int32(24), icon.Width)
	})

	t.Run("nil for empty or malformed input", func(t *testing.T) {
		assert.Nil(t, LargestIcon(nil))
		assert.Nil(t, LargestIcon([][]any{}))
		assert.Nil(t, LargestIcon([][]any{{int32(16), int32(16)}}))
		assert.Nil(t, LargestIcon("not a pixmap"))
	})
}

func TestTooltipText(t *testing.T) {
	t.Run("prefers title field", func(t *testing.T) {
		value := []any{"icon", []any{}, "Connected to wifi", "Full description"}
		assert.Equal(t, "Connected to wifi", tooltipText(value))
	})

	t.Run("falls back to description", func(t *testing.T) {
		value := []any{"icon", []any{}, "", "Full description"}
		assert.Equal(t, "Full description", tooltipText(value))
	})

	t.Run("empty for malformed values", func(t *testing.T) {
		assert.Equal(t, "", tooltipText("plain string"))
		assert.Equal(t, "", tooltipText([]any{"icon"}))
		assert.Equal(t, "", tooltipText(nil))
	})
}
