package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
	"github.com/destructatron/waytray/pkg/pubsub"
)

func TestIconName(t *testing.T) {
	assert.Equal(t, "battery-full-charged", iconName(StateFullyCharged, 100))
	assert.Equal(t, "battery-full-charging", iconName(StateCharging, 95))
	assert.Equal(t, "battery-caution-charging", iconName(StateCharging, 10))
	assert.Equal(t, "battery-good", iconName(StateDischarging, 70))
	assert.Equal(t, "battery-caution", iconName(StateDischarging, 15))
	assert.Equal(t, "battery-empty", iconName(StateDischarging, 5))
}

func TestMakeItem(t *testing.T) {
	item := makeItem(info{percentage: 87, state: StateCharging, remaining: 2*3600 + 13*60})

	assert.Equal(t, "battery:status", item.ID)
	assert.Equal(t, "87%", item.Label)
	assert.Equal(t, "Battery: 87%\nStatus: Charging\nTime to full: 2h 13m", item.Tooltip)
	assert.Empty(t, item.Actions)

	t.Run("no time line when unknown", func(t *testing.T) {
		item := makeItem(info{percentage: 50, state: StateDischarging})
		assert.Equal(t, "Battery: 50%\nStatus: Discharging", item.Tooltip)
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "", formatDuration(0))
	assert.Equal(t, "", formatDuration(-5))
	assert.Equal(t, "45m", formatDuration(45*60))
	assert.Equal(t, "2h 0m", formatDuration(2*3600))
}

// drainEvents collects whatever the context published so far.
func drainEvents(sub *pubsub.Subscription[module.Event]) []module.Event {
	var events []module.Event
	for {
		select {
		case ev := <-sub.C:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func notifications(events []module.Event) []string {
	var titles []string
	for _, ev := range events {
		if ev.Kind == module.EventNotification {
			titles = append(titles, ev.Title)
		}
	}
	return titles
}

func TestNotificationEdgeTriggering(t *testing.T) {
	events := pubsub.New[module.Event](pubsub.DefaultBuffer)
	defer events.Close()
	sub := events.Subscribe()
	mc := module.NewContext(events)

	m := New(nil, nil, config.BatteryConfig{
		Enabled:           true,
		LowThreshold:      20,
		CriticalThreshold: 10,
		NotifyFullCharge:  true,
	})

	t.Run("low fires once while discharging", func(t *testing.T) {
		m.notify(mc, info{percentage: 18, state: StateDischarging})
		m.notify(mc, info{percentage: 17, state: StateDischarging})

		assert.Equal(t, []string{"Low Battery"}, notifications(drainEvents(sub)))
	})

	t.Run("critical fires below its threshold", func(t *testing.T) {
		m.notify(mc, info{percentage: 9, state: StateDischarging})

		assert.Equal(t, []string{"Critical Battery"}, notifications(drainEvents(sub)))
	})

	t.Run("charging re-arms the thresholds", func(t *testing.T) {
		m.notify(mc, info{percentage: 9, state: StateCharging})
		m.notify(mc, info{percentage: 8, state: StateDischarging})

		titles := notifications(drainEvents(sub))
		require.Len(t, titles, 1)
		assert.Equal(t, "Critical Battery", titles[0])
	})

	t.Run("full charge notifies once", func(t *testing.T) {
		m.notify(mc, info{percentage: 100, state: StateFullyCharged})
		m.notify(mc, info{percentage: 100, state: StateFullyCharged})

		assert.Equal(t, []string{"Battery Fully Charged"}, notifications(drainEvents(sub)))
	})
}
