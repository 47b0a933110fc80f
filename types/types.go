package types

// ------------------------
// Reset cause
// ------------------------

// ResetCause distinguishes why the node (re)booted.
type ResetCause uint8

const (
	// ResetNormal covers power-on and ordinary resets.
	ResetNormal ResetCause = iota
	// ResetUnattendedExpiry means the liveness timer ran out while the node
	// was idle or asleep and nobody refreshed it in time.
	ResetUnattendedExpiry
)

func (c ResetCause) String() string {
	if c == ResetUnattendedExpiry {
		return "unattended_expiry"
	}
	return "normal"
}

// ------------------------
// Sound level
// ------------------------

// ThresholdConfig is the sound-level trigger configuration. Enabled survives
// ordinary resets; a boot after an unattended liveness-timer expiry clears it.
type ThresholdConfig struct {
	Enabled bool   `json:"enabled"`
	Level   uint16 `json:"level"` // scaled units, dB × 600
}

// ThresholdCommand is the set_threshold control payload. Data carries the
// enable flag and the big-endian level at fixed offsets.
type ThresholdCommand struct {
	Metric uint8  `json:"metric"`
	Data   []byte `json:"data"`
}

// Measurement state levels published on sound/state (retained).
const (
	StateIdle       = "idle"
	StateSampling   = "sampling"
	StateProcessing = "processing"
)

// SoundEvent is published for every completed measurement cycle.
type SoundEvent struct {
	ValueScaled uint16 `json:"value_scaled"` // dB × 600, clamped
	Explicit    bool   `json:"explicit"`     // host-requested vs autonomous
	Asserted    bool   `json:"asserted"`     // host-interrupt line pulsed
	TsMs        int64  `json:"ts_ms"`
}

// ------------------------
// Power
// ------------------------

// PowerRecord is the power sensor's measurement set.
type PowerRecord struct {
	BatteryScaled uint16 `json:"battery_scaled"` // V × 600
	SolarScaled   uint16 `json:"solar_scaled"`   // V × 600
	Undervoltage  bool   `json:"undervoltage"`
}

// Encode lays the record out as transmitted: big-endian battery, big-endian
// solar, undervoltage flag, padding.
func (r PowerRecord) Encode() [6]byte {
	var b [6]byte
	b[0] = byte(r.BatteryScaled >> 8)
	b[1] = byte(r.BatteryScaled)
	b[2] = byte(r.SolarScaled >> 8)
	b[3] = byte(r.SolarScaled)
	if r.Undervoltage {
		b[4] = 1
	}
	return b
}
