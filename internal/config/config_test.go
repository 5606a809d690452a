package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
[[safe-points]]
frequency = 400
voltage = 500

[[safe-points]]
frequency = 1600
voltage = 850

[timing]
burst-samples = 3
ramp-up-samples = 8
ramp-down-samples = 40

[timing.intervals]
sample = 10000
adjust = 8000
finetune = 40000

[timing.ramp-rates]
burst = 2.0
up = 0.5
up-medium = 0.2
up-slow = 0.1
up-crawl = 0.05
down = 0.15

[frequency-thresholds]
adjust = 100
finetune = 25

[load-target]
upper = 0.85
medium = 0.6
slow = 0.35
crawl = 0.15
lower = 0.1

[performance-mode]
enabled = true
control_file = "/tmp/bc250-max-performance"
check_interval = 500

[thermal]
monitor_interval = 1000
max_safe_temp = 95.0
emergency_temp = 105.0
`

func TestDecodeStringValid(t *testing.T) {
	cfg, err := DecodeString(validTOML)
	require.NoError(t, err)
	assert.Equal(t, uint32(400), cfg.MinFrequencyMHz())
	assert.Equal(t, uint32(1600), cfg.MaxFrequencyMHz())
	assert.Equal(t, float32(5.0), cfg.Thermal.HysteresisC, "default hysteresis applies when unset")
	assert.Equal(t, uint64(2000), cfg.Thermal.EmergencyCooldown, "default cooldown is 2x monitor_interval")
}

func TestDecodeStringSortsSafePoints(t *testing.T) {
	unsorted := `
[[safe-points]]
frequency = 1600
voltage = 850

[[safe-points]]
frequency = 400
voltage = 500

[timing]
ramp-up-samples = 8
ramp-down-samples = 40

[timing.intervals]
sample = 10000

[thermal]
max_safe_temp = 95.0
emergency_temp = 105.0
`
	cfg, err := DecodeString(unsorted)
	require.NoError(t, err)
	require.Len(t, cfg.SafePoints, 2)
	assert.Equal(t, uint32(400), cfg.SafePoints[0].Frequency)
	assert.Equal(t, uint32(1600), cfg.SafePoints[1].Frequency)
}

func TestDecodeStringRejectsTooFewSafePoints(t *testing.T) {
	_, err := DecodeString(`
[[safe-points]]
frequency = 400
voltage = 500

[timing]
ramp-up-samples = 8
ramp-down-samples = 40
[timing.intervals]
sample = 10000
[thermal]
max_safe_temp = 95.0
emergency_temp = 105.0
`)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestDecodeStringRejectsNonIncreasingFrequency(t *testing.T) {
	_, err := DecodeString(`
[[safe-points]]
frequency = 400
voltage = 500
[[safe-points]]
frequency = 400
voltage = 600

[timing]
ramp-up-samples = 8
ramp-down-samples = 40
[timing.intervals]
sample = 10000
[thermal]
max_safe_temp = 95.0
emergency_temp = 105.0
`)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestDecodeStringRejectsDecreasingVoltage(t *testing.T) {
	_, err := DecodeString(`
[[safe-points]]
frequency = 400
voltage = 600
[[safe-points]]
frequency = 800
voltage = 500

[timing]
ramp-up-samples = 8
ramp-down-samples = 40
[timing.intervals]
sample = 10000
[thermal]
max_safe_temp = 95.0
emergency_temp = 105.0
`)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestDecodeStringRejectsEmergencyBelowMaxSafe(t *testing.T) {
	_, err := DecodeString(`
[[safe-points]]
frequency = 400
voltage = 500
[[safe-points]]
frequency = 800
voltage = 600

[timing]
ramp-up-samples = 8
ramp-down-samples = 40
[timing.intervals]
sample = 10000
[thermal]
max_safe_temp = 95.0
emergency_temp = 90.0
`)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestDecodeStringRejectsInvalidFanCurve(t *testing.T) {
	_, err := DecodeString(`
[[safe-points]]
frequency = 400
voltage = 500
[[safe-points]]
frequency = 800
voltage = 600

[timing]
ramp-up-samples = 8
ramp-down-samples = 40
[timing.intervals]
sample = 10000
[thermal]
max_safe_temp = 95.0
emergency_temp = 105.0
[thermal.fan-control]
enabled = true
curve = [[40.0, 30.0], [40.0, 50.0]]
`)
	require.ErrorIs(t, err, ErrConfigInvalid)
}
