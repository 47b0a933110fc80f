// services/power/service.go
package power

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"soundnode-go/bus"
	"soundnode-go/drivers/ina226"
	"soundnode-go/errcode"
	"soundnode-go/hw"
	"soundnode-go/types"
)

// Topics.
var (
	topicState   = bus.T("power", "state")
	topicEvent   = bus.T("power", "event", "measurement")
	topicControl = bus.T("power", "control", "+")
)

const (
	ctrlMeasure = "measure"
	ctrlGetData = "get_data"
)

const (
	stateIdle      = "idle"
	stateMeasuring = "measuring"
)

// Options wires the service's hardware.
type Options struct {
	ADC   hw.ADC
	Ready hw.Pin // host-interrupt output
	WD    hw.Watchdog
	Delay hw.Delayer

	// Monitor is an optional independent bus-voltage monitor; when present
	// its reading is logged next to every battery measurement.
	Monitor *ina226.Device

	// SolarGap separates the two solar conversions. Default 2 s.
	SolarGap time.Duration
	// PulseWidth is the host-interrupt low pulse duration. Default 5 ms.
	PulseWidth time.Duration
	// LoopInterval is the foreground iteration period. Default 50 ms.
	LoopInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.Delay == nil {
		o.Delay = hw.SleepDelayer{}
	}
	if o.SolarGap <= 0 {
		o.SolarGap = 2 * time.Second
	}
	if o.PulseWidth <= 0 {
		o.PulseWidth = 5 * time.Millisecond
	}
	if o.LoopInterval <= 0 {
		o.LoopInterval = 50 * time.Millisecond
	}
}

// Service is the supply-voltage measurement service: battery and solar rails
// with min-select on solar and an undervoltage latch on battery.
type Service struct {
	conn    *bus.Connection
	sen     *sensor
	ready   hw.Pin
	wd      hw.Watchdog
	delay   hw.Delayer
	monitor *ina226.Device

	pulseWidth   time.Duration
	loopInterval time.Duration

	busy    atomic.Bool
	pending atomic.Bool

	mu   sync.Mutex
	last types.PowerRecord
}

func New(opts Options) *Service {
	opts.setDefaults()
	s := &Service{
		ready:        opts.Ready,
		wd:           opts.WD,
		delay:        opts.Delay,
		monitor:      opts.Monitor,
		pulseWidth:   opts.PulseWidth,
		loopInterval: opts.LoopInterval,
	}
	s.sen = &sensor{
		adc:      opts.ADC,
		delay:    opts.Delay,
		solarGap: opts.SolarGap,
	}
	if opts.WD != nil {
		s.sen.feed = opts.WD.Feed
	}
	return s
}

// Start runs the control loop and the foreground measurement loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	s.publishState(stateIdle)
	// Subscribe before returning so control requests sent immediately after
	// Start cannot be lost to the goroutine start-up window.
	sub := s.conn.Subscribe(topicControl)
	go s.controlLoop(ctx, sub)
	go s.measureLoop(ctx)
	return nil
}

// Measure requests one acquisition. A request arriving while one is in
// flight is dropped, not queued.
func (s *Service) Measure() bool {
	if s.busy.Load() {
		return false
	}
	s.pending.Store(true)
	return true
}

// Data returns the most recent record as transmitted.
func (s *Service) Data() [6]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Encode()
}

func (s *Service) measureLoop(ctx context.Context) {
	tick := time.NewTicker(s.loopInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			println("Info: power: measure loop stopping")
			return
		case <-tick.C:
			if s.wd != nil {
				s.wd.Feed()
			}
			if s.pending.Swap(false) {
				s.runAcquisition()
			}
		}
	}
}

func (s *Service) runAcquisition() {
	s.busy.Store(true)
	s.publishState(stateMeasuring)

	rec := s.sen.measure()
	s.mu.Lock()
	s.last = rec
	s.mu.Unlock()

	s.crossCheck(rec)
	s.pulseReady()

	s.conn.Publish(s.conn.NewMessage(topicEvent, rec, false))
	s.publishState(stateIdle)
	s.busy.Store(false)
}

// crossCheck logs the independent monitor's battery-rail reading next to the
// ADC result when a monitor is fitted.
func (s *Service) crossCheck(rec types.PowerRecord) {
	if s.monitor == nil {
		return
	}
	uv, err := s.monitor.BusMicroVolts()
	if err != nil {
		println("Info: power: monitor read failed:", err.Error())
		return
	}
	println("Info: power: battery", uint(rec.BatteryScaled), "x600, monitor", uint(uv/1000), "mV")
}

func (s *Service) pulseReady() {
	s.ready.Set(false)
	s.delay.Delay(s.pulseWidth)
	s.ready.Set(true)
}

func (s *Service) controlLoop(ctx context.Context, sub *bus.Subscription) {
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			println("Info: power: control loop stopping")
			return
		case msg := <-sub.Channel():
			s.handleControl(msg)
		}
	}
}

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 3 {
		return
	}
	switch msg.Topic[2] {
	case ctrlMeasure:
		if s.Measure() {
			s.reply(msg, map[string]any{"ok": true})
		} else {
			s.reply(msg, map[string]any{"ok": false, "error": string(errcode.Busy)})
		}
	case ctrlGetData:
		d := s.Data()
		s.reply(msg, map[string]any{"ok": true, "data": d[:]})
	default:
		s.reply(msg, map[string]any{"ok": false, "error": string(errcode.Unsupported)})
	}
}

func (s *Service) reply(req *bus.Message, payload map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, payload, false)
}

func (s *Service) publishState(level string) {
	s.conn.Publish(s.conn.NewMessage(topicState,
		map[string]any{"level": level, "ts_ms": time.Now().UnixMilli()}, true))
}
