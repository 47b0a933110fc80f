// services/soundlevel/watchdog.go
package soundlevel

import (
	"soundnode-go/hw"
	"soundnode-go/types"
)

// scheduler owns the liveness timer and the autonomous cadence decision.
type scheduler struct {
	wd hw.Watchdog
}

// onBoot inspects the reset cause, arms the timer and reports whether the
// previous reset was an unattended expiry. An unattended expiry means the
// measurement path previously hung or the node slept past its cadence, so
// the caller must clear the persisted threshold enable.
func (s *scheduler) onBoot() bool {
	expired := s.wd.BootCause() == types.ResetUnattendedExpiry
	s.wd.Feed()
	s.wd.Enable()
	return expired
}

// feed refreshes the liveness timer. Called once per foreground iteration
// and from inside every blocking wait in a measurement cycle.
func (s *scheduler) feed() { s.wd.Feed() }

// rearm makes sure the timer is running, e.g. after threshold mode is
// (re-)enabled or an autonomous cycle completes.
func (s *scheduler) rearm() { s.wd.Enable() }

// shouldAutoTrigger reports whether an autonomous cycle may start now.
// Re-evaluated once per foreground iteration, so the cadence is as fast as
// the loop spins while idle and enabled.
func (s *scheduler) shouldAutoTrigger(idle, enabled bool) bool {
	return idle && enabled
}
