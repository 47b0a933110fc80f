// services/soundlevel/stats.go
package soundlevel

import (
	"github.com/chewxy/math32"

	"soundnode-go/x/mathx"
)

// Calibration constants for the analog front end.
const (
	ampFactor    = 44
	sensitivity  = 0.01258925 // V/Pa at the microphone output
	vSupply      = 3.3
	adcFullScale = 4095
	refPressure  = 20e-6 // Pa
	dbMax        = 106
	scaleFactor  = 600

	// adcScaler converts a conversion-code deviation to a pressure in Pa.
	adcScaler = vSupply / (adcFullScale * sensitivity * ampFactor)

	// minAvgSquared floors the mean squared pressure so a zero-variance
	// (silent) buffer yields a finite level instead of log10(0). With this
	// floor the computed dB is negative and clamps to 0.
	minAvgSquared = 1e-12 // Pa²
)

// reduce runs the two-pass reduction over a completed sample buffer:
// mean of the raw codes, then the mean of squared pressure deviations,
// converted to decibels against the reference pressure. The result is the
// scaled transmit value, dB × 600, clamped to [0, 63600].
//
// The squared deviations accumulate in float64 so the result does not depend
// on sample order.
func reduce(samples []uint16, sum uint32) uint16 {
	n := float64(len(samples))
	mean := float32(float64(sum) / n)
	var sumSquares float64
	for _, s := range samples {
		p := (float32(s) - mean) * adcScaler
		sumSquares += float64(p * p)
	}
	avgSquared := sumSquares / n
	if avgSquared < minAvgSquared {
		avgSquared = minAvgSquared
	}
	db := 10 * math32.Log10(float32(avgSquared)/(refPressure*refPressure))
	db = mathx.Clamp(db, 0, dbMax)
	return uint16(math32.Round(db * scaleFactor))
}
