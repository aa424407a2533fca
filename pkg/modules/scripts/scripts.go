// Package scripts runs user-configured commands and publishes their
// output as tray items.
//
// A script may print plain text, where the first line is the label and
// the second line the tooltip, or a JSON object:
//
//	{"label": "...", "tooltip": "...", "icon": "...",
//	 "actions": [{"id": "Activate", "command": "..."}]}
package scripts

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "scripts"

const defaultInterval = 30 * time.Second

type output struct {
	Label   string         `json:"label"`
	Tooltip string         `json:"tooltip"`
	Icon    string         `json:"icon"`
	Actions []scriptAction `json:"actions"`
}

type scriptAction struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// Module runs every configured script on its own interval. Each script
// contributes one item; item order follows the config order.
type Module struct {
	module.Base

	log    *zap.SugaredLogger
	reload chan []config.ScriptConfig

	mu      sync.Mutex
	configs []config.ScriptConfig
	outputs map[string]*output
	actions map[string]string
}

// Factory returns the module factory for the registry.
func Factory(log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return len(cfg.Modules.Scripts) > 0
		},
		New: func(cfg *config.Config) module.Module {
			return New(log, cfg.Modules.Scripts)
		},
	}
}

// New returns an unstarted scripts module.
func New(log *zap.SugaredLogger, configs []config.ScriptConfig) *Module {
	return &Module{
		log:     log,
		reload:  make(chan []config.ScriptConfig, 1),
		configs: configs,
		outputs: make(map[string]*output),
		actions: make(map[string]string),
	}
}

func (m *Module) Name() string { return moduleName }

func (m *Module) Run(ctx context.Context, mc *module.Context) {
	for {
		m.mu.Lock()
		configs := make([]config.ScriptConfig, len(m.configs))
		copy(configs, m.configs)
		m.mu.Unlock()

		runCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)
		for _, sc := range configs {
			sc := sc
			g.Go(func() error {
				m.runScript(gctx, mc, sc)
				return nil
			})
		}

		select {
		case <-ctx.Done():
			cancel()
			g.Wait()
			return
		case configs := <-m.reload:
			cancel()
			g.Wait()
			m.applyConfigs(configs)
			mc.PublishItems(moduleName, m.items())
		}
	}
}

// ReloadConfig hands the new script list to the run loop, which
// restarts every script loop against it.
func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if len(cfg.Modules.Scripts) == 0 {
		return false
	}
	select {
	case <-m.reload:
	default:
	}
	m.reload <- cfg.Modules.Scripts
	return true
}

// InvokeAction executes the shell command a script declared for the
// action. Unknown actions are ignored.
func (m *Module) InvokeAction(localID, actionID string, x, y int32) error {
	m.mu.Lock()
	command, ok := m.actions[localID+":"+actionID]
	m.mu.Unlock()
	if !ok {
		m.log.Debugw("no command for action", "script", localID, "action", actionID)
		return nil
	}

	cmd := exec.Command("sh", "-c", command)
	if err := cmd.Start(); err != nil {
		m.log.Warnw("action command failed to start", "script", localID, "err", err)
		return err
	}
	go cmd.Wait()
	return nil
}

func (m *Module) applyConfigs(configs []config.ScriptConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(configs))
	for _, sc := range configs {
		keep[sc.Name] = true
	}
	for name := range m.outputs {
		if !keep[name] {
			delete(m.outputs, name)
		}
	}
	for key := range m.actions {
		name, _, _ := strings.Cut(key, ":")
		if !keep[name] {
			delete(m.actions, key)
		}
	}
	m.configs = configs
}

// runScript runs one script until the context is cancelled. Scripts
// without an interval run once and keep their item on display.
func (m *Module) runScript(ctx context.Context, mc *module.Context, sc config.ScriptConfig) {
	m.update(ctx, mc, sc)

	if sc.IntervalSeconds <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(time.Duration(sc.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.update(ctx, mc, sc)
		}
	}
}

// update runs the script once and republishes all items. A failing run
// keeps the previous output.
func (m *Module) update(ctx context.Context, mc *module.Context, sc config.ScriptConfig) {
	cmd := exec.CommandContext(ctx, "sh", "-c", sc.Command)
	raw, err := cmd.Output()
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warnw("script failed", "script", sc.Name, "err", err)
		}
		return
	}

	out := parseOutput(string(raw), sc)

	m.mu.Lock()
	m.outputs[sc.Name] = &out
	for _, action := range out.Actions {
		m.actions[sc.Name+":"+action.ID] = action.Command
	}
	m.mu.Unlock()

	mc.PublishItems(moduleName, m.items())
}

// items builds the current item list in config order.
func (m *Module) items() []module.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []module.Item
	for _, sc := range m.configs {
		out, ok := m.outputs[sc.Name]
		if !ok {
			continue
		}
		items = append(items, makeItem(sc.Name, out))
	}
	return items
}

// parseOutput decodes script output, trying JSON first when the output
// looks like a JSON object. Missing icon and tooltip fall back to the
// script config.
func parseOutput(raw string, sc config.ScriptConfig) output {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var out output
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			if out.Icon == "" {
				out.Icon = sc.Icon
			}
			if out.Tooltip == "" {
				out.Tooltip = sc.Tooltip
			}
			return out
		}
	}

	lines := strings.SplitN(trimmed, "\n", 3)
	out := output{Label: lines[0], Icon: sc.Icon, Tooltip: sc.Tooltip}
	if len(lines) > 1 {
		out.Tooltip = strings.TrimSpace(lines[1])
	}
	return out
}

func makeItem(name string, out *output) module.Item {
	item := module.NewItem(moduleName, name, out.Label)
	if out.Icon != "" {
		item = item.WithIcon(out.Icon)
	}
	if out.Tooltip != "" {
		item = item.WithTooltip(out.Tooltip)
	}
	for _, action := range out.Actions {
		if action.ID == "Activate" {
			item = item.WithAction(module.DefaultAction(action.ID, action.ID))
		} else {
			item = item.WithAction(module.NewAction(action.ID, action.ID))
		}
	}
	return item
}
