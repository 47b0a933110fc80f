// services/soundlevel/threshold.go
package soundlevel

import (
	"sync"

	"soundnode-go/types"
)

// MetricSoundLevel is the only metric selector SetThreshold recognises.
const MetricSoundLevel = 0

// SetThreshold payload layout (fixed offsets).
const (
	offEnable  = 0
	offLevelHi = 3
	offLevelLo = 4
	payloadLen = 5
)

// threshold holds the trigger configuration and the single-level rising-edge
// state. It is shared between the control goroutine (set) and the measurement
// loop (evaluate).
type threshold struct {
	mu    sync.Mutex
	cfg   types.ThresholdConfig
	above bool
}

func (t *threshold) config() types.ThresholdConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// setConfig installs the boot-time configuration.
func (t *threshold) setConfig(cfg types.ThresholdConfig) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

func (t *threshold) enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Enabled
}

// set applies a SetThreshold command. Only MetricSoundLevel with a full
// payload changes anything; everything else leaves the configuration
// untouched and reports false. No error is raised either way.
func (t *threshold) set(metric uint8, data []byte) (types.ThresholdConfig, bool) {
	if metric != MetricSoundLevel || len(data) < payloadLen {
		return t.config(), false
	}
	t.mu.Lock()
	t.cfg.Enabled = data[offEnable] != 0
	t.cfg.Level = uint16(data[offLevelHi])<<8 | uint16(data[offLevelLo])
	cfg := t.cfg
	t.mu.Unlock()
	return cfg, true
}

// evaluate decides whether to assert the host-interrupt line for value.
// Explicit cycles always assert and leave the edge state alone. Autonomous
// cycles assert only on the rising edge of value > level; falling back to or
// below the level clears the edge state. One level, no hysteresis band.
func (t *threshold) evaluate(value uint16, explicit bool) bool {
	if explicit {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if value > t.cfg.Level {
		if t.above {
			return false
		}
		t.above = true
		return true
	}
	t.above = false
	return false
}
