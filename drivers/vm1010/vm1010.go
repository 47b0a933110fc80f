// Package vm1010 drives the control lines of the Vesper VM1010 wake-on-sound
// microphone. The analog signal path goes straight to the ADC; this driver
// only owns power, mode select and the wake (DOUT) line.
//
// Mode pin semantics: high = wake-on-sound, low = active (normal) mode.
package vm1010

import "soundnode-go/hw"

// Device wraps the microphone's digital lines. DOUT is optional.
type Device struct {
	power hw.Pin
	mode  hw.Pin
	dout  hw.Pin
}

// New creates a Device. It does not touch the pins; call Configure.
func New(power, mode, dout hw.Pin) *Device {
	return &Device{power: power, mode: mode, dout: dout}
}

// Configure sets up the lines: microphone unpowered, active mode selected,
// DOUT (if present) as input.
func (d *Device) Configure() error {
	if d.dout != nil {
		if err := d.dout.ConfigureInput(hw.PullNone); err != nil {
			return err
		}
	}
	if err := d.mode.ConfigureOutput(false); err != nil {
		return err
	}
	return d.power.ConfigureOutput(false)
}

// PowerOn enables the microphone and amplifier circuit. The analog output
// needs a settle delay before sampling; the caller owns that wait.
func (d *Device) PowerOn() { d.power.Set(true) }

// PowerOff disables the microphone and amplifier circuit.
func (d *Device) PowerOff() { d.power.Set(false) }

// Powered reports the current state of the power line.
func (d *Device) Powered() bool { return d.power.Get() }

// SetWakeOnSound selects wake-on-sound (true) or active (false) mode.
func (d *Device) SetWakeOnSound(on bool) { d.mode.Set(on) }

// WakeAsserted reports the DOUT wake line level, false if DOUT is not wired.
func (d *Device) WakeAsserted() bool { return d.dout != nil && d.dout.Get() }
