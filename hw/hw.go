// hw/hw.go
package hw

import (
	"time"

	"soundnode-go/types"
)

// ---------------- Analog ----------------

// ADCStream is a continuous-conversion analog channel. After StartContinuous
// the platform invokes the registered handler once per completed conversion,
// from interrupt context: the handler must not block or allocate.
type ADCStream interface {
	Configure() error
	SetHandler(fn func(code uint16))
	StartContinuous()
	StopContinuous()
}

// ADC performs blocking single conversions on a numbered channel.
type ADC interface {
	ReadChannel(ch uint8) uint16
}

// ---------------- GPIO ----------------

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is a general-purpose digital line.
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// ---------------- Liveness timer ----------------

// Watchdog is the retriggerable liveness timer (~1 s nominal period).
// Expiry resets the node; Feed must be called within each period.
type Watchdog interface {
	Enable()
	Disable()
	Feed()
	// BootCause reports why the current boot happened. Consulted once at
	// startup to decide whether persisted threshold-enable is honoured.
	BootCause() types.ResetCause
}

// ---------------- Delay ----------------

// Delayer blocks for the given duration.
type Delayer interface {
	Delay(d time.Duration)
}

// SleepDelayer is the default Delayer backed by time.Sleep.
type SleepDelayer struct{}

func (SleepDelayer) Delay(d time.Duration) { time.Sleep(d) }

// ---------------- Persistence ----------------

// ConfigStore persists small configuration values across ordinary resets.
type ConfigStore interface {
	LoadThreshold() (types.ThresholdConfig, bool)
	SaveThreshold(cfg types.ThresholdConfig)
}
