// cmd/nodesim/main.go
//
// Host simulator: runs the full node against simulated hardware and drives it
// through a short scripted host session. The bench is described by a YAML
// scenario file.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"soundnode-go/bus"
	"soundnode-go/drivers/vm1010"
	"soundnode-go/hw/hostsim"
	"soundnode-go/services/config"
	"soundnode-go/services/heartbeat"
	"soundnode-go/services/power"
	"soundnode-go/services/soundlevel"
	"soundnode-go/types"
)

func main() {
	scenarioPath := flag.String("scenario", "scenario.yaml", "bench scenario file")
	runFor := flag.Duration("run", 10*time.Second, "observation window after the script")
	flag.Parse()

	sc, err := hostsim.Load(*scenarioPath)
	if err != nil {
		log.Fatalf("scenario: %v", err)
	}
	log.Printf("scenario: tone %.0f Hz amplitude %.0f LSB, battery %.2f V, solar %.2f V",
		sc.Sound.ToneHz, sc.Sound.AmplitudeLSB, sc.Power.BatteryVolts, sc.Power.SolarVolts)

	stream := hostsim.NewStream(sc.Sound)
	rails := hostsim.NewRails(sc.Power)
	wd := hostsim.NewWatchdog(sc.Boot)
	store := hostsim.NewMemStore(sc.Boot)
	ready := hostsim.NewPin(true)
	ready.OnFall = func() { log.Printf("host-interrupt pulse") }
	led := hostsim.NewPin(false)

	mic := vm1010.New(hostsim.NewPin(false), hostsim.NewPin(false), nil)
	if err := mic.Configure(); err != nil {
		log.Fatalf("mic: %v", err)
	}

	ctx, cancel := context.WithCancel(
		context.WithValue(context.Background(), config.CtxDeviceKey, "pico"))
	defer cancel()
	b := bus.NewBus(32)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	sound := soundlevel.New(soundlevel.Options{
		Mic:   mic,
		ADC:   stream,
		Ready: ready,
		LED:   led,
		WD:    wd,
		Store: store,
		// The simulated bench settles instantly; keep cycles short.
		Cycle: soundlevel.Config{SettleTime: 50 * time.Millisecond},
	})
	if err := sound.Start(ctx, b.NewConnection("soundlevel")); err != nil {
		log.Fatalf("soundlevel: %v", err)
	}
	pw := power.New(power.Options{ADC: rails, Ready: ready, WD: wd, SolarGap: 500 * time.Millisecond})
	if err := pw.Start(ctx, b.NewConnection("power")); err != nil {
		log.Fatalf("power: %v", err)
	}
	hb := &heartbeat.Service{LED: led}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		log.Fatalf("heartbeat: %v", err)
	}

	host := b.NewConnection("host")
	events := host.Subscribe(bus.T("+", "event", "measurement"))
	go func() {
		for m := range events.Channel() {
			switch p := m.Payload.(type) {
			case types.SoundEvent:
				log.Printf("sound event: %.2f dB (raw %d) explicit=%v asserted=%v",
					float64(p.ValueScaled)/600, p.ValueScaled, p.Explicit, p.Asserted)
			case types.PowerRecord:
				log.Printf("power event: battery %.2f V solar %.2f V undervoltage=%v",
					float64(p.BatteryScaled)/600, float64(p.SolarScaled)/600, p.Undervoltage)
			}
		}
	}()

	script(host)

	time.Sleep(*runFor)
	log.Printf("done: %d host-interrupt pulses, %d liveness refreshes",
		ready.FallCount(), wd.Feeds())
}

// script plays the host's side of a session: one explicit sound measurement,
// a power measurement, then threshold mode at 80 dB.
func script(host *bus.Connection) {
	request(host, bus.T("sound", "control", "measure"), nil)
	waitResult(host, bus.T("sound", "control", "get_data"), 600*time.Millisecond)

	request(host, bus.T("power", "control", "measure"), nil)
	waitResult(host, bus.T("power", "control", "get_data"), 1200*time.Millisecond)

	level := uint16(80 * 600)
	request(host, bus.T("sound", "control", "set_threshold"), types.ThresholdCommand{
		Metric: soundlevel.MetricSoundLevel,
		Data:   []byte{1, 0, 0, byte(level >> 8), byte(level)},
	})
}

func request(host *bus.Connection, topic bus.Topic, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := host.RequestWait(ctx, host.NewMessage(topic, payload, false))
	if err != nil {
		log.Printf("%s: %v", topic.String(), err)
		return
	}
	log.Printf("%s -> %v", topic.String(), reply.Payload)
}

// waitResult gives the node time to finish the cycle, then reads the latched
// result back.
func waitResult(host *bus.Connection, topic bus.Topic, settle time.Duration) {
	time.Sleep(settle)
	request(host, topic, nil)
}
