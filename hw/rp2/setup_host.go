//go:build !rp2040

// hw/rp2/setup_host.go
package rp2

import "soundnode-go/hw/hostsim"

// Setup assembles a simulated hardware set from the default scenario so the
// MCU mains also build and run on a development host.
func Setup() (*Platform, error) {
	sc := hostsim.Default()
	return &Platform{
		MicPower: hostsim.NewPin(false),
		MicMode:  hostsim.NewPin(false),
		MicWake:  hostsim.NewPin(false),
		Sound:    hostsim.NewStream(sc.Sound),
		Rails:    hostsim.NewRails(sc.Power),
		Ready:    hostsim.NewPin(true),
		LED:      hostsim.NewPin(false),
		WD:       hostsim.NewWatchdog(sc.Boot),
		Store:    hostsim.NewMemStore(sc.Boot),
	}, nil
}
