// hw/rp2/platform.go
//
// Board wiring for the Pico-class sound node. Setup() returns the concrete
// hw implementations: real silicon under the rp2040 tag, the host simulator
// otherwise so the same mains build everywhere.
package rp2

import "soundnode-go/hw"

// Platform is the assembled hardware set for one node.
type Platform struct {
	// Microphone control lines.
	MicPower hw.Pin
	MicMode  hw.Pin
	MicWake  hw.Pin

	// Analog front ends.
	Sound hw.ADCStream
	Rails hw.ADC

	// Host-interrupt and indicator lines.
	Ready hw.Pin
	LED   hw.Pin

	WD    hw.Watchdog
	Store hw.ConfigStore
}
