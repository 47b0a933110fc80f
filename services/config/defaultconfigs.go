package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: per-service sections published as config/<section>
// -----------------------------------------------------------------------------

var embeddedConfigs = map[string]map[string]any{
	"pico": {
		"heartbeat": map[string]any{
			"interval": 2.0,
		},
	},
}
