package voltage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bc250-gpu-governor/internal/config"
)

func testPoints() []config.SafePoint {
	return []config.SafePoint{
		{Frequency: 350, Voltage: 570},
		{Frequency: 860, Voltage: 600},
		{Frequency: 1090, Voltage: 650},
		{Frequency: 2230, Voltage: 1050},
	}
}

func TestVoltageClampsBelowRange(t *testing.T) {
	c := NewCurve(testPoints())
	assert.Equal(t, uint32(570), c.Voltage(300))
}

func TestVoltageClampsAboveRange(t *testing.T) {
	c := NewCurve(testPoints())
	assert.Equal(t, uint32(1050), c.Voltage(2500))
}

func TestVoltageExactPoints(t *testing.T) {
	c := NewCurve(testPoints())
	assert.Equal(t, uint32(570), c.Voltage(350))
	assert.Equal(t, uint32(1050), c.Voltage(2230))
}

func TestVoltageMidpointInterpolationRoundsUp(t *testing.T) {
	c := NewCurve(testPoints())
	// 975MHz is the midpoint between 860 (600mV) and 1090 (650mV);
	// ceiling rounding yields 625.
	assert.Equal(t, uint32(625), c.Voltage(975))
}

func TestVoltageMinMaxFrequency(t *testing.T) {
	c := NewCurve(testPoints())
	assert.Equal(t, uint32(350), c.MinFrequencyMHz())
	assert.Equal(t, uint32(2230), c.MaxFrequencyMHz())
}
