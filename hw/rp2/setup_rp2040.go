//go:build rp2040

// hw/rp2/setup_rp2040.go
package rp2

import (
	"device/rp"
	"machine"
	"time"

	"soundnode-go/hw"
	"soundnode-go/types"
)

// Board wiring.
const (
	pinMicPower = machine.GP2
	pinMicMode  = machine.GP3
	pinMicWake  = machine.GP4
	pinReady    = machine.GP5
	pinLED      = machine.LED

	micADCPin = machine.ADC0

	sampleRateHz = 20000
	wdPeriodMs   = 1000
)

// Setup assembles the RP2040 hardware set.
func Setup() (*Platform, error) {
	machine.InitADC()

	return &Platform{
		MicPower: &gpioPin{pin: pinMicPower},
		MicMode:  &gpioPin{pin: pinMicMode},
		MicWake:  &gpioPin{pin: pinMicWake},
		Sound:    &adcStream{adc: machine.ADC{Pin: micADCPin}},
		Rails:    &railADC{},
		Ready:    &gpioPin{pin: pinReady},
		LED:      &gpioPin{pin: pinLED},
		WD:       &watchdog{},
		Store:    &flashStore{},
	}, nil
}

// ---------------- GPIO ----------------

type gpioPin struct {
	pin machine.Pin
}

func (p *gpioPin) ConfigureInput(pull hw.Pull) error {
	mode := machine.PinInput
	switch pull {
	case hw.PullUp:
		mode = machine.PinInputPullup
	case hw.PullDown:
		mode = machine.PinInputPulldown
	}
	p.pin.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (p *gpioPin) ConfigureOutput(initial bool) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(initial)
	return nil
}

func (p *gpioPin) Set(level bool) { p.pin.Set(level) }
func (p *gpioPin) Get() bool      { return p.pin.Get() }

// ---------------- Continuous ADC ----------------

// adcStream paces single conversions at the nominal sample rate from a
// dedicated goroutine. The handler contract matches an ISR: short and
// allocation-free.
type adcStream struct {
	adc     machine.ADC
	handler func(code uint16)
	running bool
	stop    chan struct{}
}

func (s *adcStream) Configure() error {
	s.adc.Configure(machine.ADCConfig{})
	return nil
}

func (s *adcStream) SetHandler(fn func(code uint16)) { s.handler = fn }

func (s *adcStream) StartContinuous() {
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	go func(stop chan struct{}) {
		period := time.Second / sampleRateHz
		for {
			select {
			case <-stop:
				return
			default:
			}
			// machine.ADC returns left-justified 16-bit readings.
			s.handler(s.adc.Get() >> 4)
			time.Sleep(period)
		}
	}(s.stop)
}

func (s *adcStream) StopContinuous() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// ---------------- Rail ADC ----------------

// railADC maps the power front end's mux channel codes onto the spare ADC
// inputs behind the divider network.
type railADC struct{}

func (railADC) ReadChannel(ch uint8) uint16 {
	var pin machine.Pin
	switch ch {
	case 0x13:
		pin = machine.ADC1
	case 0x14:
		pin = machine.ADC2
	default:
		return 0
	}
	a := machine.ADC{Pin: pin}
	a.Configure(machine.ADCConfig{})
	return a.Get() >> 4
}

// ---------------- Liveness timer ----------------

type watchdog struct {
	started bool
}

func (w *watchdog) Enable() {
	if !w.started {
		machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: wdPeriodMs})
		machine.Watchdog.Start()
		w.started = true
	}
	machine.Watchdog.Update()
}

func (w *watchdog) Disable() {
	// The RP2040 watchdog cannot be stopped once started; keep it fed instead.
	machine.Watchdog.Update()
}

func (w *watchdog) Feed() { machine.Watchdog.Update() }

func (w *watchdog) BootCause() types.ResetCause {
	// WATCHDOG_REASON is nonzero after a timer-forced reboot.
	if rp.WATCHDOG.REASON.Get() != 0 {
		return types.ResetUnattendedExpiry
	}
	return types.ResetNormal
}

// ---------------- Persistence ----------------

// flashStore keeps the threshold configuration in the last flash block.
// Layout: magic, enabled, level hi, level lo.
type flashStore struct {
	buf [4]byte
}

const storeMagic = 0xA5

func (f *flashStore) LoadThreshold() (types.ThresholdConfig, bool) {
	if _, err := machine.Flash.ReadAt(f.buf[:], 0); err != nil {
		return types.ThresholdConfig{}, false
	}
	if f.buf[0] != storeMagic {
		return types.ThresholdConfig{}, false
	}
	return types.ThresholdConfig{
		Enabled: f.buf[1] != 0,
		Level:   uint16(f.buf[2])<<8 | uint16(f.buf[3]),
	}, true
}

func (f *flashStore) SaveThreshold(cfg types.ThresholdConfig) {
	f.buf[0] = storeMagic
	f.buf[1] = 0
	if cfg.Enabled {
		f.buf[1] = 1
	}
	f.buf[2] = byte(cfg.Level >> 8)
	f.buf[3] = byte(cfg.Level)
	if err := machine.Flash.EraseBlocks(0, 1); err != nil {
		println("Info: flashStore: erase failed:", err.Error())
		return
	}
	if _, err := machine.Flash.WriteAt(f.buf[:], 0); err != nil {
		println("Info: flashStore: write failed:", err.Error())
	}
}
