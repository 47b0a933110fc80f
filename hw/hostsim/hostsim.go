// hw/hostsim/hostsim.go
//
// Simulated hardware backing the hw interfaces on a development host. Used by
// the nodesim binary and anywhere a bench without real silicon is good enough.
package hostsim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"soundnode-go/hw"
	"soundnode-go/types"
	"soundnode-go/x/mathx"
)

// ---------------- Continuous ADC ----------------

// Stream is a hw.ADCStream fed by a tone-plus-noise generator.
type Stream struct {
	sc      SoundScenario
	handler func(code uint16)
	running atomic.Bool
	noise   uint32 // LCG state
}

func NewStream(sc SoundScenario) *Stream {
	return &Stream{sc: sc, noise: 0x2F6E2B1}
}

func (s *Stream) Configure() error                { return nil }
func (s *Stream) SetHandler(fn func(code uint16)) { s.handler = fn }

// StartContinuous generates samples at roughly the scenario rate until
// stopped. Timing is host-grade; the sample count, not wall time, is what the
// consumers depend on.
func (s *Stream) StartContinuous() {
	s.running.Store(true)
	go func() {
		period := time.Second / time.Duration(s.sc.SampleRateHz)
		phaseStep := 2 * math32.Pi * float32(s.sc.ToneHz) / float32(s.sc.SampleRateHz)
		var phase float32
		for s.running.Load() {
			code := float32(s.sc.OffsetLSB) +
				float32(s.sc.AmplitudeLSB)*math32.Sin(phase) +
				s.noiseSample()
			s.handler(uint16(mathx.Clamp(code, 0, 4095)))
			phase += phaseStep
			if phase > 2*math32.Pi {
				phase -= 2 * math32.Pi
			}
			time.Sleep(period)
		}
	}()
}

func (s *Stream) StopContinuous() { s.running.Store(false) }

// noiseSample returns uniform noise in [-NoiseLSB, +NoiseLSB].
func (s *Stream) noiseSample() float32 {
	if s.sc.NoiseLSB <= 0 {
		return 0
	}
	s.noise = s.noise*1664525 + 1013904223
	u := float32(s.noise>>8) / float32(1<<24) // [0, 1)
	return (2*u - 1) * float32(s.sc.NoiseLSB)
}

// ---------------- Single-conversion ADC ----------------

// Rails maps the power front end's mux channels to scenario voltages.
// With the /2 divider against the 2.048 V reference a rail voltage converts
// to exactly volts*1000 codes.
type Rails struct {
	sc PowerScenario
}

func NewRails(sc PowerScenario) *Rails { return &Rails{sc: sc} }

func (r *Rails) ReadChannel(ch uint8) uint16 {
	var volts float64
	switch ch {
	case 0x13:
		volts = r.sc.SolarVolts
	case 0x14:
		volts = r.sc.BatteryVolts
	}
	return uint16(mathx.Clamp(volts*1000, 0, 4095))
}

// ---------------- GPIO ----------------

// Pin is a simulated digital line. OnFall, when set, observes high→low
// transitions (the host-interrupt pulse).
type Pin struct {
	mu     sync.Mutex
	level  bool
	falls  int
	OnFall func()
}

func NewPin(initial bool) *Pin { return &Pin{level: initial} }

func (p *Pin) ConfigureInput(hw.Pull) error { return nil }
func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *Pin) Set(level bool) {
	p.mu.Lock()
	fell := p.level && !level
	if fell {
		p.falls++
	}
	cb := p.OnFall
	p.level = level
	p.mu.Unlock()
	if fell && cb != nil {
		cb()
	}
}

func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// FallCount reports how many pulses the line has seen.
func (p *Pin) FallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.falls
}

// ---------------- Liveness timer ----------------

// Watchdog satisfies hw.Watchdog without ever resetting the host. The boot
// cause comes from the scenario.
type Watchdog struct {
	cause types.ResetCause
	feeds atomic.Int64
}

func NewWatchdog(sc BootScenario) *Watchdog {
	w := &Watchdog{}
	if sc.UnattendedExpiry {
		w.cause = types.ResetUnattendedExpiry
	}
	return w
}

func (w *Watchdog) Enable()                     {}
func (w *Watchdog) Disable()                    {}
func (w *Watchdog) Feed()                       { w.feeds.Add(1) }
func (w *Watchdog) BootCause() types.ResetCause { return w.cause }

// Feeds reports how often the timer was refreshed.
func (w *Watchdog) Feeds() int64 { return w.feeds.Load() }

// ---------------- Persistence ----------------

// MemStore is an in-memory hw.ConfigStore seeded from the scenario.
type MemStore struct {
	mu    sync.Mutex
	cfg   types.ThresholdConfig
	valid bool
}

func NewMemStore(sc BootScenario) *MemStore {
	return &MemStore{
		cfg:   types.ThresholdConfig{Enabled: sc.ThresholdEnabled, Level: sc.ThresholdLevel},
		valid: true,
	}
}

func (m *MemStore) LoadThreshold() (types.ThresholdConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, m.valid
}

func (m *MemStore) SaveThreshold(cfg types.ThresholdConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.valid = true
	m.mu.Unlock()
}
