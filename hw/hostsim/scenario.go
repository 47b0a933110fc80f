// hw/hostsim/scenario.go
package hostsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes the simulated bench: the acoustic signal at the
// microphone, the supply rails and the boot conditions.
type Scenario struct {
	Sound SoundScenario `yaml:"sound"`
	Power PowerScenario `yaml:"power"`
	Boot  BootScenario  `yaml:"boot"`
}

// SoundScenario parameterises the signal generator feeding the continuous ADC.
type SoundScenario struct {
	SampleRateHz int     `yaml:"sample_rate_hz"`
	ToneHz       float64 `yaml:"tone_hz"`
	AmplitudeLSB float64 `yaml:"amplitude_lsb"` // peak deviation in codes
	OffsetLSB    float64 `yaml:"offset_lsb"`    // midcode bias
	NoiseLSB     float64 `yaml:"noise_lsb"`     // uniform noise, peak codes
}

// PowerScenario sets the rail voltages seen by the single-conversion ADC.
type PowerScenario struct {
	BatteryVolts float64 `yaml:"battery_volts"`
	SolarVolts   float64 `yaml:"solar_volts"`
}

// BootScenario sets the simulated reset cause and the persisted threshold.
type BootScenario struct {
	UnattendedExpiry bool   `yaml:"unattended_expiry"`
	ThresholdEnabled bool   `yaml:"threshold_enabled"`
	ThresholdLevel   uint16 `yaml:"threshold_level"`
}

// Default returns a quiet bench on a healthy battery.
func Default() *Scenario {
	return &Scenario{
		Sound: SoundScenario{
			SampleRateHz: 20000,
			ToneHz:       1000,
			AmplitudeLSB: 200,
			OffsetLSB:    2048,
			NoiseLSB:     2,
		},
		Power: PowerScenario{
			BatteryVolts: 3.9,
			SolarVolts:   2.5,
		},
	}
}

// Load reads a scenario from a YAML file. A missing file yields the defaults.
func Load(filename string) (*Scenario, error) {
	sc := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return sc, nil
		}
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	sc.ensureDefaults()
	return sc, nil
}

// Save writes the scenario to a YAML file.
func (s *Scenario) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}
	return nil
}

// ensureDefaults fills required generator fields that a partial file left out.
func (s *Scenario) ensureDefaults() {
	def := Default()
	if s.Sound.SampleRateHz <= 0 {
		s.Sound.SampleRateHz = def.Sound.SampleRateHz
	}
	if s.Sound.ToneHz <= 0 {
		s.Sound.ToneHz = def.Sound.ToneHz
	}
	if s.Sound.OffsetLSB <= 0 {
		s.Sound.OffsetLSB = def.Sound.OffsetLSB
	}
	if s.Power.BatteryVolts <= 0 {
		s.Power.BatteryVolts = def.Power.BatteryVolts
	}
}
