package scripts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
	"github.com/destructatron/waytray/pkg/pubsub"
)

func TestParseOutputLineFormat(t *testing.T) {
	sc := config.ScriptConfig{Name: "mail", Icon: "mail-unread", Tooltip: "Mailbox"}

	out := parseOutput("3 new\n", sc)
	assert.Equal(t, "3 new", out.Label)
	assert.Equal(t, "mail-unread", out.Icon)
	assert.Equal(t, "Mailbox", out.Tooltip)

	out = parseOutput("3 new\n2 from alice\n", sc)
	assert.Equal(t, "3 new", out.Label)
	assert.Equal(t, "2 from alice", out.Tooltip)
}

func TestParseOutputJSON(t *testing.T) {
	sc := config.ScriptConfig{Name: "vpn", Icon: "network-vpn"}

	out := parseOutput(`{"label": "up", "tooltip": "Connected", "actions": [{"id": "Activate", "command": "vpnctl toggle"}]}`, sc)
	assert.Equal(t, "up", out.Label)
	assert.Equal(t, "Connected", out.Tooltip)
	assert.Equal(t, "network-vpn", out.Icon)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "vpnctl toggle", out.Actions[0].Command)

	// Broken JSON falls back to the line format.
	out = parseOutput("{not json", sc)
	assert.Equal(t, "{not json", out.Label)
}

func TestMakeItemActions(t *testing.T) {
	out := &output{
		Label: "up",
		Actions: []scriptAction{
			{ID: "Activate", Command: "a"},
			{ID: "Restart", Command: "b"},
		},
	}
	item := makeItem("vpn", out)
	assert.Equal(t, "scripts:vpn", item.ID)
	require.Len(t, item.Actions, 2)
	assert.True(t, item.Actions[0].Default)
	assert.False(t, item.Actions[1].Default)
}

func TestItemsFollowConfigOrder(t *testing.T) {
	m := New(zap.NewNop().Sugar(), []config.ScriptConfig{
		{Name: "b", Command: "true"},
		{Name: "a", Command: "true"},
	})
	m.outputs["a"] = &output{Label: "A"}
	m.outputs["b"] = &output{Label: "B"}

	items := m.items()
	require.Len(t, items, 2)
	assert.Equal(t, "scripts:b", items[0].ID)
	assert.Equal(t, "scripts:a", items[1].ID)
}

func TestApplyConfigsPrunesRemovedScripts(t *testing.T) {
	m := New(zap.NewNop().Sugar(), []config.ScriptConfig{
		{Name: "old", Command: "true"},
		{Name: "kept", Command: "true"},
	})
	m.outputs["old"] = &output{Label: "x"}
	m.outputs["kept"] = &output{Label: "y"}
	m.actions["old:Activate"] = "cmd"
	m.actions["kept:Activate"] = "cmd"

	m.applyConfigs([]config.ScriptConfig{{Name: "kept", Command: "true"}})

	assert.NotContains(t, m.outputs, "old")
	assert.Contains(t, m.outputs, "kept")
	assert.NotContains(t, m.actions, "old:Activate")
	assert.Contains(t, m.actions, "kept:Activate")
}

func TestUpdateRunsCommand(t *testing.T) {
	events := pubsub.New[module.Event](pubsub.DefaultBuffer)
	defer events.Close()
	sub := events.Subscribe()
	defer sub.Cancel()

	mc := module.NewContext(events)
	m := New(zap.NewNop().Sugar(), nil)
	sc := config.ScriptConfig{Name: "hello", Command: "printf 'hi\\nthere\\n'"}
	m.configs = []config.ScriptConfig{sc}

	m.update(context.Background(), mc, sc)

	select {
	case ev := <-sub.C:
		require.Equal(t, module.EventItemsUpdated, ev.Kind)
		require.Len(t, ev.Items, 1)
		assert.Equal(t, "hi", ev.Items[0].Label)
		assert.Equal(t, "there", ev.Items[0].Tooltip)
	case <-time.After(time.Second):
		t.Fatal("no items published")
	}
}

func TestInvokeActionUnknownIsIgnored(t *testing.T) {
	m := New(zap.NewNop().Sugar(), nil)
	assert.NoError(t, m.InvokeAction("vpn", "nope", 0, 0))
}
