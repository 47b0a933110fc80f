// services/power/sensor.go
package power

import (
	"time"

	"github.com/chewxy/math32"

	"soundnode-go/hw"
	"soundnode-go/types"
	"soundnode-go/x/mathx"
)

// ADC channels of the power front end.
const (
	chSolar   = 0x13
	chBattery = 0x14
)

const (
	vRef         = 2.048 // internal reference, volts
	adcSteps     = 4096
	dividerRatio = 2 // resistive divider halves the rail
	scaleFactor  = 600

	// Undervoltage latch hysteresis.
	uvSetVolts   = 3.3
	uvClearVolts = 3.5
)

// sensor performs the raw acquisition. Only the measurement loop touches it.
type sensor struct {
	adc      hw.ADC
	delay    hw.Delayer
	feed     func()
	solarGap time.Duration

	under bool
}

func codeToVolts(raw uint16) float32 {
	return float32(raw) / adcSteps * dividerRatio * vRef
}

func scaled(v float32) uint16 {
	return uint16(math32.Round(v * scaleFactor))
}

// read discards the first conversion (the mux needs one to settle) and
// returns the second.
func (s *sensor) read(ch uint8) uint16 {
	s.adc.ReadChannel(ch)
	return s.adc.ReadChannel(ch)
}

// measure runs a full acquisition: battery once, solar twice with a gap in
// between, keeping the lower solar reading. The battery voltage drives the
// undervoltage latch.
func (s *sensor) measure() types.PowerRecord {
	batt := codeToVolts(s.read(chBattery))
	solar := codeToVolts(s.read(chSolar))
	s.wait(s.solarGap)
	solar = mathx.Min(solar, codeToVolts(s.read(chSolar)))

	if batt < uvSetVolts {
		s.under = true
	} else if batt > uvClearVolts {
		s.under = false
	}
	return types.PowerRecord{
		BatteryScaled: scaled(batt),
		SolarScaled:   scaled(solar),
		Undervoltage:  s.under,
	}
}

// wait sleeps in steps, refreshing the liveness timer so a long gap cannot
// trip it.
func (s *sensor) wait(d time.Duration) {
	for d > 0 {
		step := 100 * time.Millisecond
		if step > d {
			step = d
		}
		s.delay.Delay(step)
		if s.feed != nil {
			s.feed()
		}
		d -= step
	}
}
