// Package network publishes connectivity and throughput for one network
// interface.
package network

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "network"

const defaultInterval = 2 * time.Second

type traffic struct {
	rxBytes uint64
	txBytes uint64
}

// Module polls interface counters from sysfs. The monitored interface is
// either configured or auto-detected from the default route.
type Module struct {
	module.Base

	log *zap.SugaredLogger

	mu   sync.Mutex
	cfg  config.NetworkConfig
	prev *traffic
}

// Factory returns the module factory for the registry.
func Factory(log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.Network != nil && cfg.Modules.Network.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(log, *cfg.Modules.Network)
		},
	}
}

// New returns an unstarted network module.
func New(log *zap.SugaredLogger, cfg config.NetworkConfig) *Module {
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

func (m *Module) Run(ctx context.Context, mc *module.Context) {
	mc.PublishItems(moduleName, []module.Item{m.makeItem()})

	timer := time.NewTimer(m.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			mc.PublishItems(moduleName, []module.Item{m.makeItem()})
			timer.Reset(m.interval())
		}
	}
}

func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if cfg.Modules.Network == nil {
		return false
	}
	m.mu.Lock()
	m.cfg = *cfg.Modules.Network
	m.mu.Unlock()
	return true
}

func (m *Module) makeItem() module.Item {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	iface := cfg.Interface
	if iface == "" {
		iface = defaultRouteInterface()
	}
	if iface == "" {
		return module.NewItem(moduleName, "status", "No Network").
			WithIcon("network-offline").
			WithTooltip("No network interface found")
	}

	if !isUp(iface) {
		return module.NewItem(moduleName, "status", "Disconnected").
			WithIcon("network-offline").
			WithTooltip(fmt.Sprintf("Interface %s is disconnected", iface))
	}

	tooltip := []string{"Interface: " + iface}
	var labelParts []string

	if cfg.ShowIP {
		if ip := interfaceIP(iface); ip != "" {
			labelParts = append(labelParts, ip)
			tooltip = append(tooltip, "IP: "+ip)
		}
	}

	if cfg.ShowSpeed {
		interval := cfg.IntervalSeconds
		if interval <= 0 {
			interval = int(defaultInterval / time.Second)
		}
		if rx, tx, ok := m.speed(iface, uint64(interval)); ok {
			down, up := formatSpeed(rx), formatSpeed(tx)
			labelParts = append(labelParts, fmt.Sprintf("↓%s ↑%s", down, up))
			tooltip = append(tooltip, "Download: "+down, "Upload: "+up)
		} else {
			labelParts = append(labelParts, "↓-- ↑--")
		}
	}

	label := "Connected"
	if len(labelParts) > 0 {
		label = strings.Join(labelParts, " ")
	}

	return module.NewItem(moduleName, "status", label).
		WithIcon(interfaceIcon(iface)).
		WithTooltip(strings.Join(tooltip, "\n"))
}

// speed derives bytes per second from the counter delta since the last
// poll. The first reading has no delta.
func (m *Module) speed(iface string, intervalSecs uint64) (rx, tx uint64, ok bool) {
	cur, err := readTraffic(iface)
	if err != nil {
		return 0, 0, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.prev
	m.prev = &cur
	if prev == nil || intervalSecs == 0 {
		return 0, 0, false
	}

	rxDelta := cur.rxBytes - prev.rxBytes
	if cur.rxBytes < prev.rxBytes {
		rxDelta = 0
	}
	txDelta := cur.txBytes - prev.txBytes
	if cur.txBytes < prev.txBytes {
		txDelta = 0
	}
	return rxDelta / intervalSecs, txDelta / intervalSecs, true
}

func readTraffic(iface string) (traffic, error) {
	rx, err := readCounter(fmt.Sprintf("/sys/class/net/%s/statistics/rx_bytes", iface))
	if err != nil {
		return traffic{}, err
	}
	tx, err := readCounter(fmt.Sprintf("/sys/class/net/%s/statistics/tx_bytes", iface))
	if err != nil {
		return traffic{}, err
	}
	return traffic{rxBytes: rx, txBytes: tx}, nil
}

func readCounter(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

// defaultRouteInterface finds the interface of the 0.0.0.0 route in
// /proc/net/route.
func defaultRouteInterface() string {
	data, err := os.ReadFile("/proc/net/route")
	if err != nil {
		return ""
	}
	return parseDefaultRoute(string(data))
}

func parseDefaultRoute(content string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "00000000" {
			return fields[0]
		}
	}
	return ""
}

func isUp(iface string) bool {
	data, err := os.ReadFile(fmt.Sprintf("/sys/class/net/%s/operstate", iface))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "up"
}

// interfaceIP returns the first IPv4 address of the interface.
func interfaceIP(iface string) string {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// formatSpeed renders bytes per second with decimal unit prefixes.
func formatSpeed(bytesPerSec uint64) string {
	switch {
	case bytesPerSec >= 1_000_000_000:
		return fmt.Sprintf("%.1fGB/s", float64(bytesPerSec)/1_000_000_000.0)
	case bytesPerSec >= 1_000_000:
		return fmt.Sprintf("%.1fMB/s", float64(bytesPerSec)/1_000_000.0)
	case bytesPerSec >= 1_000:
		return fmt.Sprintf("%.0fKB/s", float64(bytesPerSec)/1_000.0)
	default:
		return fmt.Sprintf("%dB/s", bytesPerSec)
	}
}

// interfaceIcon guesses the connection type from the interface name.
func interfaceIcon(iface string) string {
	switch {
	case strings.HasPrefix(iface, "wl") || strings.HasPrefix(iface, "wifi"):
		return "network-wireless"
	case strings.HasPrefix(iface, "eth") || strings.HasPrefix(iface, "en"):
		return "network-wired"
	case strings.HasPrefix(iface, "tun") || strings.HasPrefix(iface, "tap"):
		return "network-vpn"
	default:
		return "network-transmit-receive"
	}
}
