// services/soundlevel/controller.go
package soundlevel

import (
	"sync/atomic"
	"time"

	"soundnode-go/drivers/vm1010"
	"soundnode-go/hw"
	"soundnode-go/types"
)

// State is the measurement state machine position.
type State uint32

const (
	StateIdle State = iota
	StateSampling
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateSampling:
		return types.StateSampling
	case StateProcessing:
		return types.StateProcessing
	default:
		return types.StateIdle
	}
}

// Config tunes the measurement cycle. Zero values take firmware defaults.
type Config struct {
	// SettleTime is the wait after microphone power-up before sampling.
	SettleTime time.Duration
	// PollInterval paces the completion-flag busy-wait.
	PollInterval time.Duration
	// PulseWidth is the host-interrupt low pulse duration.
	PulseWidth time.Duration
}

func (c *Config) setDefaults() {
	if c.SettleTime <= 0 {
		c.SettleTime = 500 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Millisecond
	}
	if c.PulseWidth <= 0 {
		c.PulseWidth = 5 * time.Millisecond
	}
}

// controller runs one measurement cycle at a time: power the microphone,
// settle, collect a fixed-count buffer from interrupt context, reduce it,
// apply the threshold policy and latch the result.
type controller struct {
	cfg   Config
	mic   *vm1010.Device
	adc   hw.ADCStream
	ready hw.Pin // host-interrupt output, idles high, pulses low
	led   hw.Pin // optional activity indicator
	delay hw.Delayer
	sched *scheduler
	col   *collector
	thr   *threshold

	state   atomic.Uint32
	pending atomic.Bool   // explicit request awaiting the foreground loop
	result  atomic.Uint32 // latest scaled value

	onState func(level string)
	onCycle func(value uint16, explicit, asserted bool)
}

func newController(cfg Config, mic *vm1010.Device, adc hw.ADCStream, ready, led hw.Pin,
	delay hw.Delayer, sched *scheduler, thr *threshold) *controller {
	cfg.setDefaults()
	return &controller{
		cfg:   cfg,
		mic:   mic,
		adc:   adc,
		ready: ready,
		led:   led,
		delay: delay,
		sched: sched,
		col:   newCollector(adc),
		thr:   thr,
	}
}

// State reports the current machine position.
func (c *controller) State() State { return State(c.state.Load()) }

// Measure requests one explicit cycle. A request arriving while a cycle is
// in flight is dropped, not queued.
func (c *controller) Measure() bool {
	if c.State() != StateIdle {
		return false
	}
	c.pending.Store(true)
	return true
}

// Data returns the most recent scaled result, big-endian. Stable until the
// next cycle completes.
func (c *controller) Data() [2]byte {
	v := uint16(c.result.Load())
	return [2]byte{byte(v >> 8), byte(v)}
}

// takePending consumes a queued explicit request.
func (c *controller) takePending() bool { return c.pending.Swap(false) }

// runCycle executes Idle → Sampling → Processing → Idle. It never cancels:
// once sampling starts, the cycle runs to its fixed sample count. The only
// abnormal exit is a hardware reset from a missed liveness refresh.
func (c *controller) runCycle(explicit bool) {
	c.setState(StateSampling)
	if c.led != nil {
		c.led.Set(true)
	}

	c.mic.PowerOn()
	c.settle()

	c.col.begin()
	c.adc.StartContinuous()
	for !c.col.completed() {
		c.sched.feed()
		c.delay.Delay(c.cfg.PollInterval)
	}
	// The collector already stopped the conversion channel.
	c.mic.PowerOff()

	c.setState(StateProcessing)
	value := reduce(c.col.samples(), c.col.sampleSum())
	c.result.Store(uint32(value))

	asserted := c.thr.evaluate(value, explicit)
	if asserted {
		c.pulseReady()
	}
	if !explicit {
		c.sched.rearm()
	}
	if c.led != nil {
		c.led.Set(false)
	}
	if c.onCycle != nil {
		c.onCycle(value, explicit, asserted)
	}
	c.setState(StateIdle)
}

func (c *controller) setState(s State) {
	c.state.Store(uint32(s))
	if c.onState != nil {
		c.onState(s.String())
	}
}

// settle waits for the analog front end to stabilise, feeding the liveness
// timer so the wait cannot trip it.
func (c *controller) settle() {
	remaining := c.cfg.SettleTime
	for remaining > 0 {
		step := 100 * time.Millisecond
		if step > remaining {
			step = remaining
		}
		c.delay.Delay(step)
		c.sched.feed()
		remaining -= step
	}
}

// pulseReady drives the host-interrupt line low for the configured width.
func (c *controller) pulseReady() {
	c.ready.Set(false)
	c.delay.Delay(c.cfg.PulseWidth)
	c.ready.Set(true)
}
