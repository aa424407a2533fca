// Package clock publishes the current time as a panel item.
package clock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "clock"

const (
	defaultFormat     = "15:04"
	defaultDateFormat = "Monday, January 2, 2006"
)

// Module displays the current time, updating on minute boundaries.
type Module struct {
	module.Base

	log    *zap.SugaredLogger
	format string
	date   string
}

// Factory returns the module factory for the registry.
func Factory(log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.Clock != nil && cfg.Modules.Clock.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(log, cfg.Modules.Clock)
		},
	}
}

// New returns a clock module using cfg's time layouts.
func New(log *zap.SugaredLogger, cfg *config.ClockConfig) *Module {
	m := &Module{log: log, format: defaultFormat, date: defaultDateFormat}
	if cfg != nil {
		if cfg.Format != "" {
			m.format = cfg.Format
		}
		if cfg.DateFormat != "" {
			m.date = cfg.DateFormat
		}
	}
	return m
}

func (m *Module) Name() string { return moduleName }

// Run publishes the time immediately and then once per minute, aligned to
// the minute boundary so the label never shows a stale minute.
func (m *Module) Run(ctx context.Context, mc *module.Context) {
	mc.PublishItems(moduleName, m.items(time.Now()))

	timer := time.NewTimer(untilNextMinute(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			mc.PublishItems(moduleName, m.items(now))
			timer.Reset(untilNextMinute(now))
		}
	}
}

func (m *Module) items(now time.Time) []module.Item {
	item := module.NewItem(moduleName, "time", now.Format(m.format)).
		WithIcon("preferences-system-time").
		WithTooltip(now.Format(m.date))
	return []module.Item{item}
}

// untilNextMinute returns the duration to just past the next minute
// boundary.
func untilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now) + 100*time.Millisecond
}
