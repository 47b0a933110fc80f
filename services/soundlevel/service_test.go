// services/soundlevel/service_test.go
package soundlevel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundnode-go/bus"
	"soundnode-go/drivers/vm1010"
	"soundnode-go/types"
)

type svcFixture struct {
	svc   *Service
	b     *bus.Bus
	conn  *bus.Connection // test-side connection
	adc   *fakeADC
	wd    *fakeWatchdog
	store *fakeStore
	ready *fakePin
}

func newSvcFixture(t *testing.T, vectors [][]uint16, store *fakeStore, cause types.ResetCause) *svcFixture {
	t.Helper()
	f := &svcFixture{
		b:     bus.NewBus(32),
		adc:   &fakeADC{vectors: vectors},
		wd:    &fakeWatchdog{cause: cause},
		store: store,
		ready: &fakePin{level: true},
	}
	f.conn = f.b.NewConnection("test")
	mic := vm1010.New(&fakePin{}, &fakePin{}, nil)
	require.NoError(t, mic.Configure())
	f.svc = New(Options{
		Mic:          mic,
		ADC:          f.adc,
		Ready:        f.ready,
		WD:           f.wd,
		Store:        f.store,
		Cycle:        fastCycle,
		LoopInterval: 2 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.svc.Start(ctx, f.b.NewConnection("soundlevel")))
	return f
}

func (f *svcFixture) request(t *testing.T, verb string, payload any) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := f.conn.RequestWait(ctx,
		f.conn.NewMessage(bus.T("sound", "control", verb), payload, false))
	require.NoError(t, err)
	reply, ok := m.Payload.(map[string]any)
	require.True(t, ok, "reply payload is a map")
	return reply
}

func nextEvent(t *testing.T, sub *bus.Subscription) types.SoundEvent {
	t.Helper()
	select {
	case m := <-sub.Channel():
		ev, ok := m.Payload.(types.SoundEvent)
		require.True(t, ok, "event payload type")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no measurement event")
		return types.SoundEvent{}
	}
}

func TestBootExpiryClearsPersistedEnable(t *testing.T) {
	store := &fakeStore{cfg: types.ThresholdConfig{Enabled: true, Level: 50000}, valid: true}
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, store, types.ResetUnattendedExpiry)

	sub := f.conn.Subscribe(bus.T("sound", "event", "measurement"))
	defer f.conn.Unsubscribe(sub)

	assert.False(t, store.current().Enabled, "enable cleared and persisted")

	// With the enable cleared nothing may trigger autonomously.
	select {
	case <-sub.Channel():
		t.Fatal("unexpected autonomous cycle after expiry boot")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(0), f.adc.starts.Load())
}

func TestNormalBootHonoursPersistedEnable(t *testing.T) {
	store := &fakeStore{cfg: types.ThresholdConfig{Enabled: true, Level: 1}, valid: true}
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, store, types.ResetNormal)

	sub := f.conn.Subscribe(bus.T("sound", "event", "measurement"))
	defer f.conn.Unsubscribe(sub)

	ev := nextEvent(t, sub)
	assert.False(t, ev.Explicit)
	assert.True(t, store.current().Enabled)
}

func TestEdgeTriggeredAutonomousSequence(t *testing.T) {
	vectors := [][]uint16{
		vectorForDB(100), // above: assert
		vectorForDB(100), // still above: no assert
		vectorForDB(66),  // below: edge cleared
		vectorForDB(100), // new edge: assert
	}
	f := newSvcFixture(t, vectors, &fakeStore{}, types.ResetNormal)

	sub := f.conn.Subscribe(bus.T("sound", "event", "measurement"))
	defer f.conn.Unsubscribe(sub)

	reply := f.request(t, ctrlSetThreshold, types.ThresholdCommand{
		Metric: MetricSoundLevel,
		Data:   []byte{1, 0, 0, 0xC3, 0x50}, // enable, level 50000
	})
	require.Equal(t, true, reply["ok"])
	require.Equal(t, true, reply["enabled"])
	require.Equal(t, uint16(0xC350), reply["level"])

	want := []bool{true, false, false, true}
	for i, w := range want {
		ev := nextEvent(t, sub)
		assert.Falsef(t, ev.Explicit, "cycle %d is autonomous", i)
		assert.Equalf(t, w, ev.Asserted, "cycle %d assert", i)
	}
	assert.Equal(t, 2, f.ready.fallCount(), "two host-interrupt pulses")
	assert.True(t, f.store.current().Enabled, "config persisted")
}

func TestExplicitMeasureAndGetData(t *testing.T) {
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, &fakeStore{}, types.ResetNormal)

	sub := f.conn.Subscribe(bus.T("sound", "event", "measurement"))
	defer f.conn.Unsubscribe(sub)

	reply := f.request(t, ctrlMeasure, nil)
	require.Equal(t, true, reply["ok"])

	ev := nextEvent(t, sub)
	assert.True(t, ev.Explicit)
	assert.True(t, ev.Asserted, "explicit cycles always pulse")

	want := []byte{byte(ev.ValueScaled >> 8), byte(ev.ValueScaled)}
	first := f.request(t, ctrlGetData, nil)
	assert.Equal(t, want, first["data"])
	second := f.request(t, ctrlGetData, nil)
	assert.Equal(t, first["data"], second["data"], "reads are idempotent")
}

func TestMeasureBusyWhileCycleInFlight(t *testing.T) {
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, &fakeStore{}, types.ResetNormal)
	f.adc.gap = 500 * time.Microsecond // ~200 ms of sampling

	reply := f.request(t, ctrlMeasure, nil)
	require.Equal(t, true, reply["ok"])

	deadline := time.Now().Add(2 * time.Second)
	for f.svc.ctrl.State() == StateIdle {
		require.True(t, time.Now().Before(deadline), "cycle never started")
		time.Sleep(100 * time.Microsecond)
	}

	reply = f.request(t, ctrlMeasure, nil)
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "busy", reply["error"])
}

func TestSetThresholdIgnoredLeavesStoreUntouched(t *testing.T) {
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, &fakeStore{}, types.ResetNormal)

	reply := f.request(t, ctrlSetThreshold, types.ThresholdCommand{
		Metric: 7,
		Data:   []byte{1, 0, 0, 0xC3, 0x50},
	})
	assert.Equal(t, true, reply["ok"], "ignored command still acknowledged")
	_, ok := reply["enabled"]
	assert.False(t, ok, "no config echoed for an ignored command")

	f.store.mu.Lock()
	saves := f.store.saves
	f.store.mu.Unlock()
	assert.Equal(t, 0, saves)
}

func TestSetThresholdBadPayloadRejected(t *testing.T) {
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, &fakeStore{}, types.ResetNormal)

	reply := f.request(t, ctrlSetThreshold, "not a command")
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "invalid_payload", reply["error"])
}

func TestStatePublishedRetained(t *testing.T) {
	f := newSvcFixture(t, [][]uint16{vectorForDB(90)}, &fakeStore{}, types.ResetNormal)

	// A late subscriber still sees the current state.
	sub := f.conn.Subscribe(bus.T("sound", "state"))
	defer f.conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, types.StateIdle, p["level"])
	case <-time.After(time.Second):
		t.Fatal("no retained state")
	}
}
