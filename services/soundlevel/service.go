// services/soundlevel/service.go
package soundlevel

import (
	"context"
	"time"

	"soundnode-go/bus"
	"soundnode-go/drivers/vm1010"
	"soundnode-go/errcode"
	"soundnode-go/hw"
	"soundnode-go/types"
)

// Topics.
var (
	topicState   = bus.T("sound", "state")
	topicEvent   = bus.T("sound", "event", "measurement")
	topicControl = bus.T("sound", "control", "+")
)

// Control verbs.
const (
	ctrlMeasure      = "measure"
	ctrlGetData      = "get_data"
	ctrlSetThreshold = "set_threshold"
)

// Options wires the service's hardware and persistence.
type Options struct {
	Mic   *vm1010.Device
	ADC   hw.ADCStream
	Ready hw.Pin // host-interrupt output
	LED   hw.Pin // optional activity indicator
	WD    hw.Watchdog
	Delay hw.Delayer
	Store hw.ConfigStore

	Cycle Config
	// LoopInterval is the foreground iteration period. Default 50 ms.
	LoopInterval time.Duration
}

// Service is the sound-level measurement service. It owns the foreground
// loop (liveness feeding plus cycle triggering) and the bus control surface.
type Service struct {
	conn  *bus.Connection
	ctrl  *controller
	thr   *threshold
	sched *scheduler
	store hw.ConfigStore

	loopInterval time.Duration
}

func New(opts Options) *Service {
	if opts.Delay == nil {
		opts.Delay = hw.SleepDelayer{}
	}
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = 50 * time.Millisecond
	}
	thr := &threshold{}
	sched := &scheduler{wd: opts.WD}
	s := &Service{
		ctrl: newController(opts.Cycle, opts.Mic, opts.ADC, opts.Ready, opts.LED,
			opts.Delay, sched, thr),
		thr:          thr,
		sched:        sched,
		store:        opts.Store,
		loopInterval: opts.LoopInterval,
	}
	return s
}

// Start runs the control loop and the foreground measurement loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	s.ctrl.onState = s.publishState
	s.ctrl.onCycle = s.publishCycle
	s.boot()
	// Subscribe before returning so control requests sent immediately after
	// Start cannot be lost to the goroutine start-up window.
	sub := s.conn.Subscribe(topicControl)
	go s.controlLoop(ctx, sub)
	go s.measureLoop(ctx)
	return nil
}

// boot loads the persisted threshold config and applies the reset-cause
// fallback before anything can trigger a cycle.
func (s *Service) boot() {
	cfg, _ := s.store.LoadThreshold()
	if s.sched.onBoot() {
		cfg.Enabled = false
		s.store.SaveThreshold(cfg)
		println("Info: soundlevel: unattended expiry reset, threshold disabled")
	}
	s.thr.setConfig(cfg)
	s.publishState(types.StateIdle)
}

// measureLoop is the foreground loop: feed the liveness timer every
// iteration and run at most one measurement cycle per iteration.
func (s *Service) measureLoop(ctx context.Context) {
	tick := time.NewTicker(s.loopInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			println("Info: soundlevel: measure loop stopping")
			return
		case <-tick.C:
			s.sched.feed()
			explicit := s.ctrl.takePending()
			if explicit || s.sched.shouldAutoTrigger(s.ctrl.State() == StateIdle, s.thr.enabled()) {
				s.ctrl.runCycle(explicit)
			}
		}
	}
}

func (s *Service) controlLoop(ctx context.Context, sub *bus.Subscription) {
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			println("Info: soundlevel: control loop stopping")
			return
		case msg := <-sub.Channel():
			s.handleControl(msg)
		}
	}
}

// handleControl dispatches sound/control/<verb>.
func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 3 {
		return
	}
	switch msg.Topic[2] {
	case ctrlMeasure:
		if s.ctrl.Measure() {
			s.replyOK(msg, nil)
		} else {
			s.replyErr(msg, errcode.Busy)
		}
	case ctrlGetData:
		d := s.ctrl.Data()
		s.replyOK(msg, map[string]any{"data": []byte{d[0], d[1]}})
	case ctrlSetThreshold:
		s.handleSetThreshold(msg)
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *Service) handleSetThreshold(msg *bus.Message) {
	var cmd types.ThresholdCommand
	switch p := msg.Payload.(type) {
	case types.ThresholdCommand:
		cmd = p
	case *types.ThresholdCommand:
		cmd = *p
	default:
		s.replyErr(msg, errcode.InvalidPayload)
		return
	}
	cfg, changed := s.thr.set(cmd.Metric, cmd.Data)
	if changed {
		s.store.SaveThreshold(cfg)
		if cfg.Enabled {
			s.sched.rearm()
		}
		s.replyOK(msg, map[string]any{"enabled": cfg.Enabled, "level": cfg.Level})
		return
	}
	// Unrecognised metric or short payload: ignored, configuration unchanged.
	s.replyOK(msg, nil)
}

func (s *Service) publishState(level string) {
	s.conn.Publish(s.conn.NewMessage(topicState,
		map[string]any{"level": level, "ts_ms": time.Now().UnixMilli()}, true))
}

func (s *Service) publishCycle(value uint16, explicit, asserted bool) {
	s.conn.Publish(s.conn.NewMessage(topicEvent, types.SoundEvent{
		ValueScaled: value,
		Explicit:    explicit,
		Asserted:    asserted,
		TsMs:        time.Now().UnixMilli(),
	}, false))
}

func (s *Service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *Service) replyErr(req *bus.Message, c errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": string(c)}, false)
}
