// services/soundlevel/collector.go
package soundlevel

import (
	"sync/atomic"

	"soundnode-go/hw"
)

// SampleCount is the fixed number of conversions per measurement cycle.
const SampleCount = 400

// collector accumulates one cycle's raw conversion codes. onSample runs in
// interrupt context; everything else runs in the foreground. The done flag is
// the sole synchronisation point: the foreground must not touch buf, sum or
// count until completed() reports true.
type collector struct {
	adc   hw.ADCStream
	buf   [SampleCount]uint16
	count uint32
	sum   uint32
	done  atomic.Bool
}

func newCollector(adc hw.ADCStream) *collector {
	c := &collector{adc: adc}
	adc.SetHandler(c.onSample)
	return c
}

// begin resets the session for a new cycle. Only valid while no sampling is
// in progress.
func (c *collector) begin() {
	c.count = 0
	c.sum = 0
	c.done.Store(false)
}

// onSample appends one conversion code and keeps the running sum. When the
// buffer fills it stops the conversion channel and signals completion.
// Interrupt context.
func (c *collector) onSample(code uint16) {
	if c.done.Load() || c.count >= SampleCount {
		return // conversion raced the stop; drop it
	}
	c.buf[c.count] = code
	c.sum += uint32(code)
	c.count++
	if c.count == SampleCount {
		c.adc.StopContinuous()
		c.done.Store(true)
	}
}

func (c *collector) completed() bool { return c.done.Load() }

// samples returns the filled buffer. Valid only after completed().
func (c *collector) samples() []uint16 { return c.buf[:] }

// sampleSum returns the running sum. Valid only after completed().
func (c *collector) sampleSum() uint32 { return c.sum }
