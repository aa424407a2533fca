package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/menu"
	"github.com/destructatron/waytray/pkg/pubsub"
)

// Factory constructs a module from configuration. Enabled is consulted
// during reconciliation without constructing the module; New may still
// return nil to decline.
type Factory struct {
	Enabled func(cfg *config.Config) bool
	New     func(cfg *config.Config) Module
}

// Notifier delivers desktop notifications on behalf of modules.
type Notifier interface {
	Send(title, body string, urgency Urgency)
}

type runningModule struct {
	module Module
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the lifecycle of all modules: it starts and stops them to
// match the configuration, merges their published item lists into one
// ordered view and routes action and menu calls to the owning module.
//
// No other component may start or stop a module.
type Registry struct {
	log      *zap.SugaredLogger
	notifier Notifier

	// events carries module output into the registry; changes fans the
	// applied updates out to consumers such as the bus service.
	events  *pubsub.Broadcaster[Event]
	changes *pubsub.Broadcaster[Event]

	baseCtx context.Context
	wg      sync.WaitGroup

	mu        sync.RWMutex
	factories map[string]Factory
	running   map[string]*runningModule
	order     []string
	items     map[string][]Item
}

// NewRegistry returns a Registry with no factories registered. notifier
// may be nil, in which case notification events are dropped.
func NewRegistry(log *zap.SugaredLogger, notifier Notifier) *Registry {
	return &Registry{
		log:       log,
		notifier:  notifier,
		events:    pubsub.New[Event](pubsub.DefaultBuffer),
		changes:   pubsub.New[Event](pubsub.DefaultBuffer),
		factories: make(map[string]Factory),
		running:   make(map[string]*runningModule),
		items:     make(map[string][]Item),
	}
}

// Register adds a module factory under the given name. Factories are
// registered once at startup, before Start.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
}

// Start launches the event listener and reconciles modules against cfg.
// Module run loops are children of ctx.
func (r *Registry) Start(ctx context.Context, cfg *config.Config) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.order = cfg.ModuleOrder()
	r.mu.Unlock()

	sub := r.events.Subscribe()
	r.wg.Add(1)
	go r.eventLoop(sub)

	r.Sync(cfg)
}

// Subscribe returns a receiver of applied item updates and config-reload
// notifications. Slow receivers lose events and should re-query full
// state.
func (r *Registry) Subscribe() *pubsub.Subscription[Event] {
	return r.changes.Subscribe()
}

// eventLoop applies module events to the merged item map and forwards
// notifications. It is the only writer of r.items besides stopModule.
func (r *Registry) eventLoop(sub *pubsub.Subscription[Event]) {
	defer r.wg.Done()

	for ev := range sub.C {
		switch ev.Kind {
		case EventItemsUpdated:
			r.mu.Lock()
			// A stop may race a module's final publish; never
			// resurrect items for a module that is gone.
			if _, ok := r.running[ev.Module]; ok {
				r.items[ev.Module] = ev.Items
			}
			r.mu.Unlock()
			r.changes.Publish(ev)

		case EventNotification:
			if r.notifier != nil {
				r.notifier.Send(ev.Title, ev.Body, ev.Urgency)
			}
		}
	}
}

// Sync reconciles running modules against cfg: stops modules that are no
// longer enabled, starts newly enabled ones and offers the new
// configuration to the rest. A second call with the same configuration
// performs no starts or stops. No name is ever both started and stopped
// in one pass.
func (r *Registry) Sync(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	enabled := make(map[string]bool, len(r.factories))
	for name, factory := range r.factories {
		enabled[name] = factory.Enabled != nil && factory.Enabled(cfg)
	}

	for name := range r.running {
		if !enabled[name] {
			r.stopModule(name)
		}
	}

	// Only modules that were already running get the new config offered;
	// ones started below were built from it.
	survivors := make([]string, 0, len(r.running))
	for name := range r.running {
		survivors = append(survivors, name)
	}

	for name, on := range enabled {
		if on {
			if _, ok := r.running[name]; !ok {
				r.startModule(name, cfg)
			}
		}
	}

	for _, name := range survivors {
		rm, ok := r.running[name]
		if !ok {
			continue
		}
		if rm.module.ReloadConfig(cfg) {
			r.log.Infow("module accepted new config", "module", name)
		}
	}
}

// startModule is called with r.mu held.
func (r *Registry) startModule(name string, cfg *config.Config) {
	factory := r.factories[name]
	if factory.New == nil {
		r.log.Warnw("no constructor registered for module", "module", name)
		return
	}
	mod := factory.New(cfg)
	if mod == nil {
		r.log.Debugw("factory declined to build module", "module", name)
		return
	}

	base := r.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	rm := &runningModule{module: mod, cancel: cancel, done: make(chan struct{})}
	r.running[name] = rm

	mc := &Context{events: r.events}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(rm.done)

		r.log.Infow("module started", "module", name)
		mod.Run(ctx, mc)
		r.log.Infow("module stopped", "module", name)
	}()
}

// stopModule is called with r.mu held. It cancels the run loop, waits for
// it to exit, runs the module's teardown and discards its items.
func (r *Registry) stopModule(name string) {
	rm, ok := r.running[name]
	if !ok {
		return
	}
	delete(r.running, name)

	rm.cancel()
	<-rm.done
	rm.module.Stop()
	delete(r.items, name)

	r.changes.Publish(Event{Kind: EventItemsUpdated, Module: name})
}

// Items returns every module's items concatenated in the configured
// display order. Modules absent from the order appear afterwards,
// alphabetically for stability.
func (r *Registry) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Item
	seen := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		if seen[name] {
			continue
		}
		seen[name] = true
		all = append(all, r.items[name]...)
	}

	var rest []string
	for name := range r.items {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		all = append(all, r.items[name]...)
	}
	return all
}

// ModuleItems returns the current items of one named module.
func (r *Registry) ModuleItems(name string) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.items[name]
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// ItemCount returns the total number of merged items.
func (r *Registry) ItemCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, items := range r.items {
		count += len(items)
	}
	return count
}

// Modules lists every registered module and whether it is running.
func (r *Registry) Modules() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.factories))
	for name := range r.factories {
		_, running := r.running[name]
		infos = append(infos, Info{Name: name, Enabled: running})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// route resolves "module:local" to the owning running module and the
// local id.
func (r *Registry) route(itemID string) (Module, string, error) {
	name, localID, ok := strings.Cut(itemID, ":")
	if !ok {
		return nil, "", fmt.Errorf("item id %q: %w", itemID, ErrInvalidID)
	}

	r.mu.RLock()
	rm, running := r.running[name]
	r.mu.RUnlock()

	if !running {
		return nil, "", fmt.Errorf("module %q: %w", name, ErrNotFound)
	}
	return rm.module, localID, nil
}

// InvokeAction routes an action call to the module owning the item.
func (r *Registry) InvokeAction(itemID, actionID string, x, y int32) error {
	mod, localID, err := r.route(itemID)
	if err != nil {
		return err
	}
	return mod.InvokeAction(localID, actionID, x, y)
}

// MenuItems routes a menu fetch to the module owning the item.
func (r *Registry) MenuItems(itemID string) ([]menu.Node, error) {
	mod, localID, err := r.route(itemID)
	if err != nil {
		return nil, err
	}
	return mod.MenuItems(localID)
}

// ActivateMenuItem routes a menu click to the module owning the item.
func (r *Registry) ActivateMenuItem(itemID string, nodeID int32) error {
	mod, localID, err := r.route(itemID)
	if err != nil {
		return err
	}
	return mod.ActivateMenuItem(localID, nodeID)
}

// Reload replaces the display order, re-reconciles modules and tells
// consumers to refresh even if the item set did not change shape.
func (r *Registry) Reload(cfg *config.Config) {
	r.mu.Lock()
	r.order = cfg.ModuleOrder()
	r.mu.Unlock()

	r.Sync(cfg)

	r.changes.Publish(Event{Kind: EventConfigReloaded})
}

// Shutdown stops every running module and closes the event buses.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for name := range r.running {
		r.stopModule(name)
	}
	r.mu.Unlock()

	r.events.Close()
	r.wg.Wait()
	r.changes.Close()
}
