// services/soundlevel/threshold_test.go
package soundlevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundnode-go/types"
)

func TestEvaluateRisingEdgeOnly(t *testing.T) {
	thr := &threshold{}
	thr.setConfig(types.ThresholdConfig{Enabled: true, Level: 50000})

	values := []uint16{60000, 60000, 40000, 60000}
	want := []bool{true, false, false, true}
	for i, v := range values {
		assert.Equalf(t, want[i], thr.evaluate(v, false), "cycle %d value %d", i, v)
	}
}

func TestEvaluateExplicitAlwaysAssertsWithoutTouchingEdge(t *testing.T) {
	thr := &threshold{}
	thr.setConfig(types.ThresholdConfig{Enabled: true, Level: 50000})

	assert.True(t, thr.evaluate(60000, false), "autonomous rising edge")
	assert.True(t, thr.evaluate(40000, true), "explicit asserts regardless of level")
	// The explicit cycle must not have cleared the edge state.
	assert.False(t, thr.evaluate(60000, false), "still above, no new edge")
}

func TestEvaluateBoundaryIsNotAbove(t *testing.T) {
	thr := &threshold{}
	thr.setConfig(types.ThresholdConfig{Enabled: true, Level: 50000})

	assert.False(t, thr.evaluate(50000, false), "equal to level is not above")
	assert.True(t, thr.evaluate(50001, false))
}

func TestSetThresholdPayloadLayout(t *testing.T) {
	thr := &threshold{}

	cfg, changed := thr.set(MetricSoundLevel, []byte{1, 0xAA, 0xBB, 0xC3, 0x50})
	require.True(t, changed)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, uint16(0xC350), cfg.Level)

	cfg, changed = thr.set(MetricSoundLevel, []byte{0, 0, 0, 0x12, 0x34})
	require.True(t, changed)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, uint16(0x1234), cfg.Level)
}

func TestSetThresholdIgnoresUnknownMetricAndShortPayload(t *testing.T) {
	thr := &threshold{}
	thr.setConfig(types.ThresholdConfig{Enabled: true, Level: 100})

	cfg, changed := thr.set(7, []byte{0, 0, 0, 0xFF, 0xFF})
	assert.False(t, changed)
	assert.Equal(t, types.ThresholdConfig{Enabled: true, Level: 100}, cfg)

	cfg, changed = thr.set(MetricSoundLevel, []byte{1, 0, 0})
	assert.False(t, changed)
	assert.Equal(t, types.ThresholdConfig{Enabled: true, Level: 100}, cfg)
}
