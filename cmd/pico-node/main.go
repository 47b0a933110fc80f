// cmd/pico-node/main.go
package main

import (
	"context"
	"time"

	"soundnode-go/bus"
	"soundnode-go/drivers/vm1010"
	"soundnode-go/hw/rp2"
	"soundnode-go/services/config"
	"soundnode-go/services/heartbeat"
	"soundnode-go/services/power"
	"soundnode-go/services/soundlevel"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot: soundnode")

	p, err := rp2.Setup()
	if err != nil {
		println("Error: platform setup:", err.Error())
		return
	}
	if err := p.Sound.Configure(); err != nil {
		println("Error: adc setup:", err.Error())
		return
	}

	mic := vm1010.New(p.MicPower, p.MicMode, p.MicWake)
	if err := mic.Configure(); err != nil {
		println("Error: mic setup:", err.Error())
		return
	}
	if err := p.Ready.ConfigureOutput(true); err != nil {
		println("Error: ready line setup:", err.Error())
		return
	}
	_ = p.LED.ConfigureOutput(false)

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")
	b := bus.NewBus(8)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	sound := soundlevel.New(soundlevel.Options{
		Mic:   mic,
		ADC:   p.Sound,
		Ready: p.Ready,
		LED:   p.LED,
		WD:    p.WD,
		Store: p.Store,
	})
	if err := sound.Start(ctx, b.NewConnection("soundlevel")); err != nil {
		println("Error: soundlevel start:", err.Error())
		return
	}

	pw := power.New(power.Options{
		ADC:   p.Rails,
		Ready: p.Ready,
		WD:    p.WD,
	})
	if err := pw.Start(ctx, b.NewConnection("power")); err != nil {
		println("Error: power start:", err.Error())
		return
	}

	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("Error: heartbeat start:", err.Error())
		return
	}

	select {}
}
