// Package voltage implements the piecewise-linear safe-point interpolator.
package voltage

import (
	"math"

	"bc250-gpu-governor/internal/config"
)

// Curve maps a target frequency to a safe voltage by linear interpolation
// between sorted safe points. It holds no state beyond the points themselves;
// Config.Validate has already enforced strictly-increasing frequencies and
// non-decreasing voltages before a Curve is built.
type Curve struct {
	points []config.SafePoint
}

// NewCurve copies points into a Curve. Callers pass config.Config.SafePoints,
// which Config.Validate has already sorted ascending by frequency.
func NewCurve(points []config.SafePoint) Curve {
	cp := make([]config.SafePoint, len(points))
	copy(cp, points)
	return Curve{points: cp}
}

// Voltage returns the millivolts for freqMHz, clamping to the curve's
// endpoints outside its range and rounding up within a segment — a safety
// bias toward higher voltage.
func (c Curve) Voltage(freqMHz uint32) uint32 {
	if len(c.points) == 0 {
		return 0
	}
	if freqMHz <= c.points[0].Frequency {
		return c.points[0].Voltage
	}
	last := c.points[len(c.points)-1]
	if freqMHz >= last.Frequency {
		return last.Voltage
	}

	for i := 0; i < len(c.points)-1; i++ {
		lo, hi := c.points[i], c.points[i+1]
		if freqMHz >= lo.Frequency && freqMHz < hi.Frequency {
			span := float64(hi.Frequency - lo.Frequency)
			frac := float64(freqMHz-lo.Frequency) / span
			v := float64(lo.Voltage) + frac*float64(hi.Voltage-lo.Voltage)
			return uint32(math.Ceil(v))
		}
	}
	return last.Voltage
}

// MinFrequencyMHz and MaxFrequencyMHz bound the ramp controller's target.
func (c Curve) MinFrequencyMHz() uint32 { return c.points[0].Frequency }
func (c Curve) MaxFrequencyMHz() uint32 { return c.points[len(c.points)-1].Frequency }
