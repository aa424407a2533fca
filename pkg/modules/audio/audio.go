// Package audio publishes volume state for the default output and
// optionally the default microphone, controlled through pactl. pactl
// speaks to both PulseAudio and PipeWire (via pipewire-pulse), which
// keeps the module free of native audio bindings.
package audio

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "audio"

// pollInterval is short because volume changes from outside the daemon
// (media keys, mixers) should show up promptly.
const pollInterval = 500 * time.Millisecond

const (
	defaultMaxVolume  = 100
	defaultScrollStep = 5
)

// deviceState is the snapshot of one sink or source.
type deviceState struct {
	volume int
	muted  bool
	name   string
}

// target addresses the pactl commands for one device class.
type target struct {
	kind string // "sink" or "source"
	def  string // the @DEFAULT_...@ placeholder
}

var (
	output = target{kind: "sink", def: "@DEFAULT_SINK@"}
	input  = target{kind: "source", def: "@DEFAULT_SOURCE@"}
)

// Module polls pactl for the default sink and source and exposes
// mute and volume step actions on the resulting items.
type Module struct {
	module.Base

	log *zap.SugaredLogger

	// pactl runs one pactl invocation and returns its stdout. Swapped
	// out in tests.
	pactl func(args ...string) (string, error)

	mu  sync.RWMutex
	cfg config.AudioConfig
}

// Factory returns the module factory for the registry.
func Factory(log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.Audio != nil && cfg.Modules.Audio.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(log, *cfg.Modules.Audio)
		},
	}
}

// New returns an unstarted audio module.
func New(log *zap.SugaredLogger, cfg config.AudioConfig) *Module {
	return &Module{log: log, pactl: runPactl, cfg: normalize(cfg)}
}

func runPactl(args ...string) (string, error) {
	out, err := exec.Command("pactl", args...).Output()
	return string(out), err
}

// normalize fills unset tuning fields with their defaults.
func normalize(cfg config.AudioConfig) config.AudioConfig {
	if cfg.MaxVolume <= 0 {
		cfg.MaxVolume = defaultMaxVolume
	}
	if cfg.ScrollStep <= 0 {
		cfg.ScrollStep = defaultScrollStep
	}
	return cfg
}

func (m *Module) Name() string { return moduleName }

func (m *Module) config() config.AudioConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Run polls pactl twice a second and republishes when either device
// state changed.
func (m *Module) Run(ctx context.Context, mc *module.Context) {
	if _, err := m.pactl("--version"); err != nil {
		m.log.Errorw("pactl not found, audio module idle", "err", err)
		mc.PublishItems(moduleName, nil)
		return
	}

	lastSink, sinkOK := m.read(output)
	lastMic, micOK := m.readMic()
	mc.PublishItems(moduleName, m.items(lastSink, sinkOK, lastMic, micOK))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink, sok := m.read(output)
			mic, mok := m.readMic()
			if sink == lastSink && sok == sinkOK && mic == lastMic && mok == micOK {
				continue
			}
			lastSink, sinkOK = sink, sok
			lastMic, micOK = mic, mok
			mc.PublishItems(moduleName, m.items(sink, sok, mic, mok))
		}
	}
}

// ReloadConfig swaps in new tuning; the poll loop picks it up on the
// next tick.
func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if cfg.Modules.Audio == nil {
		return false
	}
	m.mu.Lock()
	m.cfg = normalize(*cfg.Modules.Audio)
	m.mu.Unlock()
	return true
}

// InvokeAction adjusts the device named by the item's local id. The
// poll loop republishes the new state within one interval.
func (m *Module) InvokeAction(localID, actionID string, x, y int32) error {
	t := output
	if localID == "microphone" {
		t = input
	}
	cfg := m.config()

	switch actionID {
	case "toggle_mute":
		_, err := m.pactl("set-"+t.kind+"-mute", t.def, "toggle")
		return err
	case "volume_up":
		if st, ok := m.read(t); ok && st.volume >= cfg.MaxVolume {
			return nil
		}
		_, err := m.pactl("set-"+t.kind+"-volume", t.def, "+"+strconv.Itoa(cfg.ScrollStep)+"%")
		return err
	case "volume_down":
		_, err := m.pactl("set-"+t.kind+"-volume", t.def, "-"+strconv.Itoa(cfg.ScrollStep)+"%")
		return err
	default:
		m.log.Debugw("unknown audio action", "item", localID, "action", actionID)
		return nil
	}
}

// read returns the current state of the default device of t.
func (m *Module) read(t target) (deviceState, bool) {
	name, err := m.pactl("get-default-" + t.kind)
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		return deviceState{}, false
	}

	volOut, err := m.pactl("get-"+t.kind+"-volume", t.def)
	if err != nil {
		return deviceState{}, false
	}
	muteOut, err := m.pactl("get-"+t.kind+"-mute", t.def)
	if err != nil {
		return deviceState{}, false
	}

	st := deviceState{
		volume: parseVolume(volOut),
		muted:  strings.Contains(muteOut, "yes"),
		name:   name,
	}
	if list, err := m.pactl("list", t.kind+"s"); err == nil {
		if desc := description(list, name); desc != "" {
			st.name = desc
		}
	}
	return st, true
}

// readMic reads the default source unless the microphone view is off or
// the default source is a sink monitor, which is not a real microphone.
func (m *Module) readMic() (deviceState, bool) {
	if !m.config().ShowMicrophone {
		return deviceState{}, false
	}
	name, err := m.pactl("get-default-source")
	if err != nil || strings.Contains(name, ".monitor") {
		return deviceState{}, false
	}
	return m.read(input)
}

func (m *Module) items(sink deviceState, sinkOK bool, mic deviceState, micOK bool) []module.Item {
	var items []module.Item
	if sinkOK {
		items = append(items, m.sinkItem(sink))
	}
	if micOK {
		items = append(items, m.micItem(mic))
	}
	return items
}

func (m *Module) sinkItem(st deviceState) module.Item {
	label := ""
	if m.config().ShowVolume {
		label = volumeLabel(st)
	}
	muteLabel := "Mute"
	if st.muted {
		muteLabel = "Unmute"
	}
	return module.NewItem(moduleName, "output", label).
		WithIcon(sinkIcon(st.volume, st.muted)).
		WithTooltip(tooltip("Volume", "Output", st)).
		WithAction(module.DefaultAction("toggle_mute", muteLabel)).
		WithAction(module.NewAction("volume_up", "Volume Up")).
		WithAction(module.NewAction("volume_down", "Volume Down"))
}

func (m *Module) micItem(st deviceState) module.Item {
	label := ""
	if m.config().ShowVolume {
		label = volumeLabel(st)
	}
	muteLabel := "Mute Microphone"
	if st.muted {
		muteLabel = "Unmute Microphone"
	}
	return module.NewItem(moduleName, "microphone", label).
		WithIcon(micIcon(st.volume, st.muted)).
		WithTooltip(tooltip("Microphone", "Input", st)).
		WithAction(module.DefaultAction("toggle_mute", muteLabel)).
		WithAction(module.NewAction("volume_up", "Microphone Volume Up")).
		WithAction(module.NewAction("volume_down", "Microphone Volume Down"))
}

func volumeLabel(st deviceState) string {
	if st.muted {
		return "Muted"
	}
	return strconv.Itoa(st.volume) + "%"
}

func tooltip(what, direction string, st deviceState) string {
	suffix := ""
	if st.muted {
		suffix = " (Muted)"
	}
	return what + ": " + strconv.Itoa(st.volume) + "%" + suffix + "\n" + direction + ": " + st.name
}

func sinkIcon(volume int, muted bool) string {
	switch {
	case muted || volume == 0:
		return "audio-volume-muted"
	case volume < 33:
		return "audio-volume-low"
	case volume < 66:
		return "audio-volume-medium"
	default:
		return "audio-volume-high"
	}
}

func micIcon(volume int, muted bool) string {
	switch {
	case muted || volume == 0:
		return "microphone-sensitivity-muted"
	case volume < 33:
		return "microphone-sensitivity-low"
	case volume < 66:
		return "microphone-sensitivity-medium"
	default:
		return "microphone-sensitivity-high"
	}
}

// parseVolume extracts the first percentage from pactl volume output,
// formatted like "Volume: front-left: 65536 / 100% / 0.00 dB, ...".
func parseVolume(out string) int {
	for _, part := range strings.Split(out, "/") {
		part = strings.TrimSpace(part)
		if !strings.HasSuffix(part, "%") {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(part, "%"))); err == nil {
			return v
		}
	}
	return 0
}

// description finds the Description of the named device in "pactl list
// sinks" (or sources) output.
func description(list, name string) string {
	inDevice := false
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "Name:"); ok {
			inDevice = strings.TrimSpace(after) == name
			continue
		}
		if after, ok := strings.CutPrefix(line, "Description:"); ok && inDevice {
			return strings.TrimSpace(after)
		}
	}
	return ""
}
