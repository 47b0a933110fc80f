package heartbeat

import (
	"context"
	"time"

	"soundnode-go/bus"
	"soundnode-go/hw"
	"soundnode-go/x/conv"
)

var (
	topicConfig = bus.T("config", "heartbeat")
	topicEvents = bus.T("+", "event", "measurement")
)

// Service prints a periodic liveness line and blips the activity indicator
// for every measurement event on the bus.
type Service struct {
	// LED is optional; without it the service only logs.
	LED hw.Pin
	// Interval is the initial heartbeat period. Default 1 s; runtime changes
	// arrive on config/heartbeat.
	Interval time.Duration

	beats uint64
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)
	evSub := conn.Subscribe(topicEvents)
	defer conn.Unsubscribe(evSub)

	interval := s.Interval
	if interval <= 0 {
		interval = 1 * time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var buf [20]byte
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			s.beats++
			println("Info:", t.Format("15:04:05"), "Heartbeat", string(conv.Utoa(buf[:], s.beats)))
		case <-evSub.Channel():
			s.blip()
		case msg := <-cfgSub.Channel():
			// Change tick interval if needed
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if secs, ok := iv.(float64); ok && secs > 0 {
						tick.Reset(time.Duration(secs * float64(time.Second)))
						println("Info: heartbeat interval set to", iv, "seconds")
					}
				}
			}
		}
	}
}

// blip gives a short visible flash without holding up the loop for long.
func (s *Service) blip() {
	if s.LED == nil {
		return
	}
	s.LED.Set(true)
	time.Sleep(20 * time.Millisecond)
	s.LED.Set(false)
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
