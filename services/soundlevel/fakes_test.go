// services/soundlevel/fakes_test.go
package soundlevel

import (
	"sync"
	"sync/atomic"
	"time"

	"soundnode-go/hw"
	"soundnode-go/types"
)

// fakeADC implements hw.ADCStream. Each StartContinuous picks the next vector
// from the queue (sticking to the last one) and delivers it in a loop from a
// separate goroutine until stopped, mimicking continuous conversion with a
// per-sample interrupt.
type fakeADC struct {
	mu      sync.Mutex
	handler func(code uint16)
	vectors [][]uint16
	next    int
	gap     time.Duration // optional per-sample delay

	running atomic.Bool
	starts  atomic.Int32
	stops   atomic.Int32
}

func (f *fakeADC) Configure() error                { return nil }
func (f *fakeADC) SetHandler(fn func(code uint16)) { f.handler = fn }

func (f *fakeADC) StartContinuous() {
	f.mu.Lock()
	idx := f.next
	if idx >= len(f.vectors) {
		idx = len(f.vectors) - 1
	}
	vec := f.vectors[idx]
	f.next++
	gap := f.gap
	f.mu.Unlock()

	f.starts.Add(1)
	f.running.Store(true)
	go func() {
		for i := 0; f.running.Load(); i++ {
			f.handler(vec[i%len(vec)])
			if gap > 0 {
				time.Sleep(gap)
			}
		}
	}()
}

func (f *fakeADC) StopContinuous() {
	f.running.Store(false)
	f.stops.Add(1)
}

// fakePin implements hw.Pin and counts high→low transitions (pulses).
type fakePin struct {
	mu     sync.Mutex
	level  bool
	falls  int
	inputs int
}

func (p *fakePin) ConfigureInput(hw.Pull) error { p.mu.Lock(); p.inputs++; p.mu.Unlock(); return nil }
func (p *fakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.level = initial
	p.mu.Unlock()
	return nil
}
func (p *fakePin) Set(level bool) {
	p.mu.Lock()
	if p.level && !level {
		p.falls++
	}
	p.level = level
	p.mu.Unlock()
}
func (p *fakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}
func (p *fakePin) fallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.falls
}

// fakeWatchdog implements hw.Watchdog.
type fakeWatchdog struct {
	cause   types.ResetCause
	feeds   atomic.Int32
	enables atomic.Int32
}

func (w *fakeWatchdog) Enable()                     { w.enables.Add(1) }
func (w *fakeWatchdog) Disable()                    {}
func (w *fakeWatchdog) Feed()                       { w.feeds.Add(1) }
func (w *fakeWatchdog) BootCause() types.ResetCause { return w.cause }

// fakeStore implements hw.ConfigStore.
type fakeStore struct {
	mu    sync.Mutex
	cfg   types.ThresholdConfig
	valid bool
	saves int
}

func (s *fakeStore) LoadThreshold() (types.ThresholdConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.valid
}
func (s *fakeStore) SaveThreshold(cfg types.ThresholdConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.valid = true
	s.saves++
	s.mu.Unlock()
}
func (s *fakeStore) current() types.ThresholdConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// vectorForDB builds a full-buffer square wave around midcode whose reduction
// lands near the requested decibel level.
func vectorForDB(db float64) []uint16 {
	p := refPressure * pow10(db/20)
	d := p / adcScaler
	const mid = 2048.0
	v := make([]uint16, SampleCount)
	for i := range v {
		if i%2 == 0 {
			v[i] = uint16(mid + d)
		} else {
			v[i] = uint16(mid - d)
		}
	}
	return v
}

// constantVector is a zero-variance buffer.
func constantVector(code uint16) []uint16 {
	v := make([]uint16, SampleCount)
	for i := range v {
		v[i] = code
	}
	return v
}

func pow10(x float64) float64 {
	// exp(x·ln10); good enough for test vector construction.
	const ln10 = 2.302585092994046
	r := 1.0
	term := 1.0
	y := x * ln10
	for i := 1; i < 30; i++ {
		term *= y / float64(i)
		r += term
	}
	return r
}
