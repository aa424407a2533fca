package tray

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destructatron/waytray/pkg/pubsub"
)

func collectEvents(t *testing.T, sub *pubsub.Subscription[Event], n int) []Event {
	t.Helper()

	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-sub.C:
			events = append(events, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return events
}

func assertNoEvent(t *testing.T, sub *pubsub.Subscription[Event]) {
	t.Helper()

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %v for %q", ev.Kind, ev.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestItemCacheUpsert(t *testing.T) {
	cache := NewItemCache()
	defer cache.Close()
	sub := cache.Subscribe()

	cache.Upsert(Item{ID: ":1.5/StatusNotifierItem", Title: "first"})
	cache.Upsert(Item{ID: ":1.5/StatusNotifierItem", Title: "second"})

	events := collectEvents(t, sub, 2)
	assert.Equal(t, ItemAdded, events[0].Kind)
	assert.Equal(t, ItemUpdated, events[1].Kind)
	assert.Equal(t, ":1.5/StatusNotifierItem", events[0].ID)

	item, ok := cache.Get(":1.5/StatusNotifierItem")
	require.True(t, ok)
	assert.Equal(t, "second", item.Title)
	assert.Equal(t, 1, cache.Len())
}

func TestItemCacheRemove(t *testing.T) {
	cache := NewItemCache()
	defer cache.Close()

	cache.Upsert(Item{ID: "a", Title: "app"})
	sub := cache.Subscribe()

	t.Run("present item is returned and announced", func(t *testing.T) {
		item, ok := cache.Remove("a")
		require.True(t, ok)
		assert.Equal(t, "app", item.Title)
		assert.False(t, cache.Contains("a"))

		events := collectEvents(t, sub, 1)
		assert.Equal(t, ItemRemoved, events[0].Kind)
		assert.Equal(t, "a", events[0].ID)
	})

	t.Run("absent item emits nothing", func(t *testing.T) {
		_, ok := cache.Remove("a")
		assert.False(t, ok)
		assertNoEvent(t, sub)
	})
}

func TestItemCacheRemoveByOwner(t *testing.T) {
	cache := NewItemCache()
	defer cache.Close()

	cache.Upsert(Item{ID: ":1.5/StatusNotifierItem", BusName: ":1.5"})
	cache.Upsert(Item{ID: ":1.5/other", BusName: ":1.5"})
	cache.Upsert(Item{ID: ":1.9/StatusNotifierItem", BusName: ":1.9"})
	sub := cache.Subscribe()

	removed := cache.RemoveByOwner(":1.5")
	assert.Len(t, removed, 2)

	events := collectEvents(t, sub, 2)
	for _, ev := range events {
		assert.Equal(t, ItemRemoved, ev.Kind)
	}

	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Contains(":1.9/StatusNotifierItem"))

	t.Run("unrelated owner removes nothing", func(t *testing.T) {
		assert.Empty(t, cache.RemoveByOwner(":1.77"))
		assertNoEvent(t, sub)
	})
}

func TestItemCacheScopedUpdates(t *testing.T) {
	cache := NewItemCache()
	defer cache.Close()

	cache.Upsert(Item{
		ID:       "a",
		Title:    "app",
		Tooltip:  "tip",
		Status:   StatusActive,
		IconName: "app-icon",
	})
	sub := cache.Subscribe()

	cache.UpdateTitle("a", "renamed")
	cache.UpdateStatus("a", StatusNeedsAttention)
	cache.UpdateTooltip("a", "new tip")
	cache.UpdateIcon("a", "new-icon", &Icon{Width: 16, Height: 16})

	events := collectEvents(t, sub, 4)
	for _, ev := range events {
		assert.Equal(t, ItemUpdated, ev.Kind)
		assert.Equal(t, "a", ev.ID)
	}

	item, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "renamed", item.Title)
	assert.Equal(t, StatusNeedsAttention, item.Status)
	assert.Equal(t, "new tip", item.Tooltip)
	assert.Equal(t, "new-icon", item.IconName)
	require.NotNil(t, item.Icon)
	assert.Equal(t, int32(16), item.Icon.Width)

	t.Run("unknown id is a silent no-op", func(t *testing.T) {
		cache.UpdateTitle("missing", "x")
		cache.UpdateStatus("missing", StatusPassive)
		assertNoEvent(t, sub)
		assert.Equal(t, 1, cache.Len())
	})
}

func TestItemCacheEventOrder(t *testing.T) {
	cache := NewItemCache()
	defer cache.Close()
	sub := cache.Subscribe()

	cache.Upsert(Item{ID: "a"})
	cache.UpdateTitle("a", "one")
	cache.Upsert(Item{ID: "b"})
	cache.Remove("a")

	events := collectEvents(t, sub, 4)
	assert.Equal(t, []Event{
		{Kind: ItemAdded, ID: "a"},
		{Kind: ItemUpdated, ID: "a"},
		{Kind: ItemAdded, ID: "b"},
		{Kind: ItemRemoved, ID: "a"},
	}, events)
}

func TestItemCacheAll(t *testing.T) {
	cache := NewItemCache()
	defer cache.Close()

	cache.Upsert(Item{ID: "a"})
	cache.Upsert(Item{ID: "b"})

	ids := make(map[string]bool)
	for _, item := range cache.All() {
		ids[item.ID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, ids)
}
