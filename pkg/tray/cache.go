package tray

import (
	"sync"

	"github.com/destructatron/waytray/pkg/pubsub"
)

// EventKind tags a cache Event.
type EventKind int

const (
	ItemAdded EventKind = iota
	ItemUpdated
	ItemRemoved
)

func (k EventKind) String() string {
	switch k {
	case ItemAdded:
		return "added"
	case ItemUpdated:
		return "updated"
	case ItemRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event describes a single cache change.
type Event struct {
	Kind EventKind
	ID   string
}

// ItemCache is a concurrent store of tray items with change notification.
// It has no protocol knowledge; the Host is its only writer in production.
//
// Events reach each subscriber in publication order. Subscribers that fall
// behind lose events (see pubsub) and must resynchronize via All.
type ItemCache struct {
	mu     sync.RWMutex
	items  map[string]Item
	events *pubsub.Broadcaster[Event]
}

// NewItemCache returns an empty cache.
func NewItemCache() *ItemCache {
	return &ItemCache{
		items:  make(map[string]Item),
		events: pubsub.New[Event](pubsub.DefaultBuffer),
	}
}

// Subscribe returns an independent receiver of cache events.
func (c *ItemCache) Subscribe() *pubsub.Subscription[Event] {
	return c.events.Subscribe()
}

// Close cancels all subscriptions.
func (c *ItemCache) Close() {
	c.events.Close()
}

// Upsert inserts or replaces the item keyed by its ID, emitting ItemAdded
// for new keys and ItemUpdated otherwise.
func (c *ItemCache) Upsert(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.items[item.ID]
	c.items[item.ID] = item

	kind := ItemAdded
	if exists {
		kind = ItemUpdated
	}
	c.events.Publish(Event{Kind: kind, ID: item.ID})
}

// Remove deletes the item with the given id, emitting ItemRemoved only if
// it was present.
func (c *ItemCache) Remove(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return Item{}, false
	}
	delete(c.items, id)
	c.events.Publish(Event{Kind: ItemRemoved, ID: id})
	return item, true
}

// RemoveByOwner deletes every item whose BusName equals busName. This is
// the cleanup path for connections that vanish from the bus (the owning
// application crashed rather than unregistering). One ItemRemoved event is
// emitted per removed item.
func (c *ItemCache) RemoveByOwner(busName string) []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []Item
	for id, item := range c.items {
		if item.BusName != busName {
			continue
		}
		delete(c.items, id)
		c.events.Publish(Event{Kind: ItemRemoved, ID: id})
		removed = append(removed, item)
	}
	return removed
}

// Get returns a copy of the item with the given id.
func (c *ItemCache) Get(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	return item, ok
}

// All returns copies of every cached item, in unspecified order.
func (c *ItemCache) All() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	return items
}

// Contains reports whether an item with the given id exists.
func (c *ItemCache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.items[id]
	return ok
}

// Len returns the number of cached items.
func (c *ItemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// UpdateTitle mutates the title of an existing item in place and emits
// ItemUpdated. Unknown ids are a silent no-op.
func (c *ItemCache) UpdateTitle(id, title string) {
	c.update(id, func(item *Item) { item.Title = title })
}

// UpdateStatus mutates the status of an existing item in place.
func (c *ItemCache) UpdateStatus(id string, status Status) {
	c.update(id, func(item *Item) { item.Status = status })
}

// UpdateIcon mutates both icon fields of an existing item in place.
func (c *ItemCache) UpdateIcon(id, iconName string, icon *Icon) {
	c.update(id, func(item *Item) {
		item.IconName = iconName
		item.Icon = icon
	})
}

// UpdateTooltip mutates the tooltip of an existing item in place.
func (c *ItemCache) UpdateTooltip(id, tooltip string) {
	c.update(id, func(item *Item) { item.Tooltip = tooltip })
}

func (c *ItemCache) update(id string, mutate func(*Item)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return
	}
	mutate(&item)
	c.items[id] = item
	c.events.Publish(Event{Kind: ItemUpdated, ID: id})
}
