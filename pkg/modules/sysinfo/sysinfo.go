// Package sysinfo publishes CPU, memory and temperature readings from
// procfs and sysfs.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "system"

const defaultInterval = 5 * time.Second

// cpuSample is one cumulative reading of the aggregate cpu line; usage is
// derived from the delta between two samples.
type cpuSample struct {
	idle  uint64
	total uint64
}

// Module polls procfs at a configured interval.
type Module struct {
	module.Base

	log *zap.SugaredLogger

	mu   sync.Mutex
	cfg  config.SystemConfig
	prev *cpuSample
}

// Factory returns the module factory for the registry.
func Factory(log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.System != nil && cfg.Modules.System.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(log, *cfg.Modules.System)
		},
	}
}

// New returns an unstarted system module.
func New(log *zap.SugaredLogger, cfg config.SystemConfig) *Module {
	return &Module{log: log, cfg: cfg}
}

func (m *Module) Name() string { return moduleName }

func (m *Module) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.IntervalSeconds > 0 {
		return time.Duration(m.cfg.IntervalSeconds) * time.Second
	}
	return defaultInterval
}

// Run polls until cancelled, republishing the full item list every
// interval.
func (m *Module) Run(ctx context.Context, mc *module.Context) {
	mc.PublishItems(moduleName, m.collect())

	timer := time.NewTimer(m.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			mc.PublishItems(moduleName, m.collect())
			timer.Reset(m.interval())
		}
	}
}

// ReloadConfig swaps the new settings in; the next poll uses them.
func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if cfg.Modules.System == nil {
		return false
	}
	m.mu.Lock()
	m.cfg = *cfg.Modules.System
	m.mu.Unlock()
	return true
}

func (m *Module) collect() []module.Item {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	var items []module.Item

	if cfg.ShowCPU {
		if usage, ok := m.cpuUsage(); ok {
			items = append(items, cpuItem(usage))
		}
	}
	if cfg.ShowTemperature {
		if temp, ok := readTemperature(); ok {
			items = append(items, temperatureItem(temp))
		}
	}
	if cfg.ShowMemory {
		if percent, usedGB, totalGB, ok := readMemory(); ok {
			items = append(items, memoryItem(percent, usedGB, totalGB))
		}
	}
	return items
}

// cpuUsage derives utilization from the delta against the previous
// sample; the very first reading reports 0.
func (m *Module) cpuUsage() (int, bool) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, false
	}
	line, _, _ := strings.Cut(string(data), "\n")
	sample, ok := parseCPULine(line)
	if !ok {
		return 0, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	usage := 0
	if m.prev != nil {
		usage = usageBetween(*m.prev, sample)
	}
	m.prev = &sample
	return usage, true
}

// parseCPULine parses the aggregate line of /proc/stat:
// cpu user nice system idle iowait irq softirq steal guest guest_nice
func parseCPULine(line string) (cpuSample, bool) {
	if !strings.HasPrefix(line, "cpu ") {
		return cpuSample{}, false
	}

	var values []uint64
	for _, field := range strings.Fields(line)[1:] {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return cpuSample{}, false
		}
		values = append(values, v)
	}
	if len(values) < 4 {
		return cpuSample{}, false
	}

	sample := cpuSample{idle: values[3]}
	if len(values) > 4 {
		sample.idle += values[4] // iowait counts as idle
	}
	for _, v := range values {
		sample.total += v
	}
	return sample, true
}

func usageBetween(prev, cur cpuSample) int {
	totalDelta := cur.total - prev.total
	if cur.total < prev.total || totalDelta == 0 {
		return 0
	}
	idleDelta := cur.idle - prev.idle
	if cur.idle < prev.idle {
		idleDelta = 0
	}
	usage := 100.0 * (1.0 - float64(idleDelta)/float64(totalDelta))
	return int(usage + 0.5)
}

func readMemory() (percent int, usedGB, totalGB float64, ok bool) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0, 0, false
	}
	return parseMemInfo(string(data))
}

// parseMemInfo computes usage from MemTotal and MemAvailable (both kB).
func parseMemInfo(content string) (percent int, usedGB, totalGB float64, ok bool) {
	var total, available uint64
	var haveTotal, haveAvailable bool

	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				total, haveTotal = v, true
			}
		case "MemAvailable:":
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				available, haveAvailable = v, true
			}
		}
		if haveTotal && haveAvailable {
			break
		}
	}
	if !haveTotal || !haveAvailable || total == 0 {
		return 0, 0, 0, false
	}

	used := total - available
	percent = int(float64(used)/float64(total)*100.0 + 0.5)
	usedGB = float64(used) / 1048576.0
	totalGB = float64(total) / 1048576.0
	return percent, usedGB, totalGB, true
}

// readTemperature prefers thermal_zone0 and falls back to scanning for a
// zone whose type looks like a cpu sensor.
func readTemperature() (float64, bool) {
	if temp, ok := readZoneTemp("/sys/class/thermal/thermal_zone0/temp"); ok {
		return temp, true
	}

	entries, err := os.ReadDir("/sys/class/thermal")
	if err != nil {
		return 0, false
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "thermal_zone") {
			continue
		}
		zone := filepath.Join("/sys/class/thermal", entry.Name())
		kind, err := os.ReadFile(filepath.Join(zone, "type"))
		if err != nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(string(kind)))
		if !strings.Contains(name, "cpu") && !strings.Contains(name, "x86_pkg") && !strings.Contains(name, "core") {
			continue
		}
		if temp, ok := readZoneTemp(filepath.Join(zone, "temp")); ok {
			return temp, true
		}
	}
	return 0, false
}

func readZoneTemp(path string) (float64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	millidegrees, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return float64(millidegrees) / 1000.0, true
}

func cpuItem(usage int) module.Item {
	return module.NewItem(moduleName, "cpu", fmt.Sprintf("CPU %d%%", usage)).
		WithIcon("utilities-system-monitor").
		WithTooltip(fmt.Sprintf("CPU Usage: %d%%", usage))
}

func memoryItem(percent int, usedGB, totalGB float64) module.Item {
	return module.NewItem(moduleName, "memory", fmt.Sprintf("Mem %d%%", percent)).
		WithIcon("drive-harddisk").
		WithTooltip(fmt.Sprintf("Memory: %.1f GB / %.1f GB (%d%%)", usedGB, totalGB, percent))
}

func temperatureItem(temp float64) module.Item {
	icon := "sensors-temperature"
	if temp >= 80.0 {
		icon = "dialog-warning"
	}
	return module.NewItem(moduleName, "temperature", fmt.Sprintf("%.0f°C", temp)).
		WithIcon(icon).
		WithTooltip(fmt.Sprintf("CPU Temperature: %.1f°C", temp))
}
