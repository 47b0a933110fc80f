// services/power/service_test.go
package power

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundnode-go/bus"
	"soundnode-go/hw"
	"soundnode-go/types"
)

// fakeADC serves queued conversion codes per channel, sticking to the last
// value when a queue runs out.
type fakeADC struct {
	mu     sync.Mutex
	queues map[uint8][]uint16
	reads  map[uint8]int
}

func newFakeADC() *fakeADC {
	return &fakeADC{queues: map[uint8][]uint16{}, reads: map[uint8]int{}}
}

func (f *fakeADC) ReadChannel(ch uint8) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[ch]++
	q := f.queues[ch]
	if len(q) == 0 {
		return 0
	}
	v := q[0]
	if len(q) > 1 {
		f.queues[ch] = q[1:]
	}
	return v
}

// codeFor converts a rail voltage to a conversion code. With a /2 divider and
// a 2.048 V reference over 4096 steps the code is exactly volts*1000.
func codeFor(volts float32) uint16 {
	return uint16(volts * 1000)
}

type fakePin struct {
	mu    sync.Mutex
	level bool
	falls int
}

func (p *fakePin) ConfigureInput(hw.Pull) error { return nil }
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
func (p *fakePin) Get() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.level }
func (p *fakePin) fallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.falls
}

func newTestSensor(adc *fakeADC) *sensor {
	return &sensor{adc: adc, delay: hw.SleepDelayer{}, solarGap: time.Millisecond}
}

func TestSensorDiscardsFirstConversion(t *testing.T) {
	adc := newFakeADC()
	adc.queues[chBattery] = []uint16{9999, codeFor(3.9)}
	adc.queues[chSolar] = []uint16{codeFor(2.5)}

	rec := newTestSensor(adc).measure()
	assert.Equal(t, uint16(2340), rec.BatteryScaled, "3.9 V x600")
	assert.Equal(t, 2, adc.reads[chBattery])
	assert.Equal(t, 4, adc.reads[chSolar], "two conversions per solar sample")
}

func TestSensorKeepsLowerSolarReading(t *testing.T) {
	adc := newFakeADC()
	adc.queues[chBattery] = []uint16{codeFor(3.9)}
	// First sample (after discard) 3.0 V, second sample 2.5 V.
	adc.queues[chSolar] = []uint16{0, codeFor(3.0), 0, codeFor(2.5)}

	rec := newTestSensor(adc).measure()
	assert.Equal(t, uint16(1500), rec.SolarScaled, "min of the two samples")
}

func TestUndervoltageLatchHysteresis(t *testing.T) {
	adc := newFakeADC()
	adc.queues[chSolar] = []uint16{codeFor(2.0)}
	sen := newTestSensor(adc)

	steps := []struct {
		battery float32
		under   bool
	}{
		{3.6, false},
		{3.2, true},  // below set level, latch
		{3.4, true},  // inside the band, held
		{3.6, false}, // above clear level, released
		{3.4, false}, // inside the band, stays clear
	}
	for i, st := range steps {
		adc.queues[chBattery] = []uint16{codeFor(st.battery)}
		rec := sen.measure()
		assert.Equalf(t, st.under, rec.Undervoltage, "step %d at %.1f V", i, st.battery)
	}
}

type svcFixture struct {
	svc   *Service
	conn  *bus.Connection
	adc   *fakeADC
	ready *fakePin
}

func newSvcFixture(t *testing.T, solarGap time.Duration) *svcFixture {
	t.Helper()
	b := bus.NewBus(16)
	f := &svcFixture{
		adc:   newFakeADC(),
		ready: &fakePin{level: true},
		conn:  b.NewConnection("test"),
	}
	f.adc.queues[chBattery] = []uint16{codeFor(3.9)}
	f.adc.queues[chSolar] = []uint16{codeFor(2.5)}
	f.svc = New(Options{
		ADC:          f.adc,
		Ready:        f.ready,
		SolarGap:     solarGap,
		PulseWidth:   time.Millisecond,
		LoopInterval: 2 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.svc.Start(ctx, b.NewConnection("power")))
	return f
}

func (f *svcFixture) request(t *testing.T, verb string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := f.conn.RequestWait(ctx,
		f.conn.NewMessage(bus.T("power", "control", verb), nil, false))
	require.NoError(t, err)
	reply, ok := m.Payload.(map[string]any)
	require.True(t, ok, "reply payload is a map")
	return reply
}

func TestMeasurePublishesRecordAndPulses(t *testing.T) {
	f := newSvcFixture(t, time.Millisecond)

	sub := f.conn.Subscribe(bus.T("power", "event", "measurement"))
	defer f.conn.Unsubscribe(sub)

	reply := f.request(t, ctrlMeasure)
	require.Equal(t, true, reply["ok"])

	select {
	case m := <-sub.Channel():
		rec, ok := m.Payload.(types.PowerRecord)
		require.True(t, ok)
		assert.Equal(t, uint16(2340), rec.BatteryScaled)
		assert.Equal(t, uint16(1500), rec.SolarScaled)
		assert.False(t, rec.Undervoltage)

		enc := rec.Encode()
		got := f.request(t, ctrlGetData)
		assert.Equal(t, enc[:], got["data"])
	case <-time.After(2 * time.Second):
		t.Fatal("no measurement event")
	}
	assert.Equal(t, 1, f.ready.fallCount())
	assert.True(t, f.ready.Get(), "line back high after the pulse")
}

func TestMeasureBusyWhileAcquiring(t *testing.T) {
	f := newSvcFixture(t, 300*time.Millisecond)

	reply := f.request(t, ctrlMeasure)
	require.Equal(t, true, reply["ok"])

	deadline := time.Now().Add(2 * time.Second)
	for !f.svc.busy.Load() {
		require.True(t, time.Now().Before(deadline), "acquisition never started")
		time.Sleep(time.Millisecond)
	}

	reply = f.request(t, ctrlMeasure)
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "busy", reply["error"])
}

func TestUnknownVerbRejected(t *testing.T) {
	f := newSvcFixture(t, time.Millisecond)
	reply := f.request(t, "calibrate")
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "unsupported", reply["error"])
}
