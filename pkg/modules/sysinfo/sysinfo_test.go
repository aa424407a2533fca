package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPULine(t *testing.T) {
	sample, ok := parseCPULine("cpu  4705 150 1120 16250 520 0 175 0 0 0")
	require.True(t, ok)
	assert.Equal(t, uint64(16250+520), sample.idle)
	assert.Equal(t, uint64(4705+150+1120+16250+520+175), sample.total)

	t.Run("rejects per-core lines", func(t *testing.T) {
		_, ok := parseCPULine("cpu0 4705 150 1120 16250")
		assert.False(t, ok)
	})

	t.Run("rejects short lines", func(t *testing.T) {
		_, ok := parseCPULine("cpu 1 2 3")
		assert.False(t, ok)
	})
}

func TestUsageBetween(t *testing.T) {
	prev := cpuSample{idle: 1000, total: 2000}

	t.Run("half busy", func(t *testing.T) {
		// 1000 total ticks elapsed, 500 of them idle.
		assert.Equal(t, 50, usageBetween(prev, cpuSample{idle: 1500, total: 3000}))
	})

	t.Run("fully idle", func(t *testing.T) {
		assert.Equal(t, 0, usageBetween(prev, cpuSample{idle: 2000, total: 3000}))
	})

	t.Run("no elapsed ticks", func(t *testing.T) {
		assert.Equal(t, 0, usageBetween(prev, prev))
	})

	t.Run("counter wrap reads zero", func(t *testing.T) {
		assert.Equal(t, 0, usageBetween(prev, cpuSample{idle: 10, total: 20}))
	})
}

func TestParseMemInfo(t *testing.T) {
	content := `MemTotal:       16384000 kB
MemFree:         1024000 kB
MemAvailable:    8192000 kB
Buffers:          512000 kB
`
	percent, usedGB, totalGB, ok := parseMemInfo(content)
	require.True(t, ok)
	assert.Equal(t, 50, percent)
	assert.InDelta(t, 7.8, usedGB, 0.1)
	assert.InDelta(t, 15.6, totalGB, 0.1)

	t.Run("missing MemAvailable fails", func(t *testing.T) {
		_, _, _, ok := parseMemInfo("MemTotal: 16384000 kB\n")
		assert.False(t, ok)
	})
}

func TestItemBuilders(t *testing.T) {
	cpu := cpuItem(34)
	assert.Equal(t, "system:cpu", cpu.ID)
	assert.Equal(t, "CPU 34%", cpu.Label)

	mem := memoryItem(50, 7.8, 15.6)
	assert.Equal(t, "system:memory", mem.ID)
	assert.Equal(t, "Mem 50%", mem.Label)
	assert.Equal(t, "Memory: 7.8 GB / 15.6 GB (50%)", mem.Tooltip)

	temp := temperatureItem(47.6)
	assert.Equal(t, "system:temperature", temp.ID)
	assert.Equal(t, "48°C", temp.Label)
	assert.Equal(t, "sensors-temperature", temp.IconName)

	t.Run("hot cpu gets a warning icon", func(t *testing.T) {
		assert.Equal(t, "dialog-warning", temperatureItem(85).IconName)
	})
}
