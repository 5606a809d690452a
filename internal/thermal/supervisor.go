// Package thermal latches an emergency state off temperature readings and
// drives the fan curve through a small state machine owned by one loop.
package thermal

import (
	"math"
	"time"

	"bc250-gpu-governor/internal/config"
)

// FanCurve maps a temperature in Celsius to a fan duty percentage by the
// same piecewise-linear shape as the voltage curve. Percent returns the
// unrounded value; Supervisor.Observe rounds it to nearest rather than up,
// since there's no safety bias toward a particular fan speed.
type FanCurve struct {
	points [][2]float64 // {tempC, percent}, ascending by temperature
}

// NewFanCurve copies points into a FanCurve. Config.Validate has already
// enforced strictly-increasing temperatures and non-decreasing percentages.
func NewFanCurve(points [][2]float64) FanCurve {
	cp := make([][2]float64, len(points))
	copy(cp, points)
	return FanCurve{points: cp}
}

// Percent returns the fan duty percentage for tempC, clamped to the curve's
// endpoints outside its range.
func (f FanCurve) Percent(tempC float64) float64 {
	if len(f.points) == 0 {
		return 0
	}
	if tempC <= f.points[0][0] {
		return f.points[0][1]
	}
	last := f.points[len(f.points)-1]
	if tempC >= last[0] {
		return last[1]
	}
	for i := 0; i < len(f.points)-1; i++ {
		lo, hi := f.points[i], f.points[i+1]
		if tempC >= lo[0] && tempC < hi[0] {
			span := hi[0] - lo[0]
			frac := (tempC - lo[0]) / span
			return lo[1] + frac*(hi[1]-lo[1])
		}
	}
	return last[1]
}

// State names whether the supervisor is operating normally or has latched
// into an emergency response.
type State int

const (
	Normal State = iota
	Emergency
)

// Supervisor tracks temperature history and the emergency latch: emergency
// engages the instant temperature crosses emergency_temp, and clears only
// once temperature has fallen back below max_safe_temp by the configured
// hysteresis AND a minimum cooldown has elapsed since emergency was
// entered (see DESIGN.md for why clearing requires both conditions).
type Supervisor struct {
	maxSafeTempC   float32
	emergencyTempC float32
	hysteresisC    float32
	cooldown       time.Duration

	curve FanCurve

	state     State
	enteredAt time.Time
}

// NewSupervisor builds a Supervisor from the Thermal config block.
func NewSupervisor(cfg config.Thermal) *Supervisor {
	return &Supervisor{
		maxSafeTempC:   cfg.MaxSafeTempC,
		emergencyTempC: cfg.EmergencyTempC,
		hysteresisC:    cfg.HysteresisC,
		cooldown:       cfg.EmergencyCooldownDuration(),
		curve:          NewFanCurve(cfg.FanControl.Curve),
	}
}

// Observe feeds one temperature reading and returns the supervisor's state
// after evaluating the latch, plus the fan percentage to apply: 100 while
// in Emergency, otherwise the configured curve's value.
func (s *Supervisor) Observe(tempC float64, now time.Time) (State, float64) {
	switch s.state {
	case Normal:
		if tempC >= float64(s.emergencyTempC) {
			s.state = Emergency
			s.enteredAt = now
		}
	case Emergency:
		clearThreshold := float64(s.maxSafeTempC - s.hysteresisC)
		cooledEnough := now.Sub(s.enteredAt) >= s.cooldown
		if tempC < clearThreshold && cooledEnough {
			s.state = Normal
		}
	}

	if s.state == Emergency {
		return s.state, 100
	}
	return s.state, math.Round(s.curve.Percent(tempC))
}

// InEmergency reports whether the latch is currently engaged.
func (s *Supervisor) InEmergency() bool { return s.state == Emergency }
