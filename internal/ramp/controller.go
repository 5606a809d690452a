// Package ramp implements the governor's tier-selection policy engine: it
// turns load ratios and a burst-confirmation counter into a target
// frequency/voltage pair for the sysfs actuator to (rate-limit and) commit.
package ramp

import (
	"math"
	"time"

	"bc250-gpu-governor/internal/config"
	"bc250-gpu-governor/internal/voltage"
)

// Tier names the ramp-rate bucket selected for the current tick.
type Tier int

const (
	Burst Tier = iota
	UpFast
	UpMedium
	UpSlow
	UpCrawl
	Hold
	Down
)

func (t Tier) String() string {
	switch t {
	case Burst:
		return "burst"
	case UpFast:
		return "up-fast"
	case UpMedium:
		return "up-medium"
	case UpSlow:
		return "up-slow"
	case UpCrawl:
		return "up-crawl"
	case Hold:
		return "hold"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// sampleSanityCeiling clamps an abnormally long gap between ticks (e.g. a
// stalled loop) so a single slow tick can't overshoot the ramp target.
const sampleSanityCeiling = time.Second

// Decision is what the controller wants actuated this tick.
type Decision struct {
	Tier         Tier
	FrequencyMHz uint32
	VoltageMV    uint32
}

// Controller holds the fractional tracking frequency and burst-confirmation
// counter across ticks. It is owned exclusively by the control loop; no
// synchronization is required.
type Controller struct {
	curve    voltage.Curve
	minFreq  uint32
	maxFreq  uint32

	burstSamples uint32
	thresholds   config.LoadTarget
	rates        config.RampRates

	currentFreqMHz         float64
	consecutiveHighSamples uint32
	tier                   Tier

	stats Stats
}

// NewController builds a Controller starting at the curve's minimum
// frequency.
func NewController(curve voltage.Curve, timing config.Timing, loadTarget config.LoadTarget) *Controller {
	return &Controller{
		curve:          curve,
		minFreq:        curve.MinFrequencyMHz(),
		maxFreq:        curve.MaxFrequencyMHz(),
		burstSamples:   timing.BurstSamples,
		thresholds:     loadTarget,
		rates:          timing.RampRates,
		currentFreqMHz: float64(curve.MinFrequencyMHz()),
		tier:           Hold,
	}
}

// Tick advances the controller by one sample period and returns the target
// frequency/voltage to offer the actuator. perfLock forces Burst at
// max-frequency; emergency forces the target straight to min-frequency,
// taking priority over perfLock since thermal safety outranks a
// performance-lock request.
func (c *Controller) Tick(fastRatio, slowRatio float64, elapsed time.Duration, perfLock, emergency bool) Decision {
	if elapsed > sampleSanityCeiling {
		elapsed = sampleSanityCeiling
	}
	elapsedMs := float64(elapsed) / float64(time.Millisecond)

	if fastRatio >= c.thresholds.Upper {
		c.consecutiveHighSamples++
	} else {
		c.consecutiveHighSamples = 0
	}

	switch {
	case emergency:
		c.tier = Down
		c.currentFreqMHz = float64(c.minFreq)
	case perfLock:
		c.tier = Burst
		c.currentFreqMHz = float64(c.maxFreq)
	default:
		prevTier := c.tier
		c.tier = c.selectTier(fastRatio, slowRatio)
		if c.tier == Burst && prevTier != Burst {
			c.stats.RecordBurst()
		}
		delta := c.rateForTier(c.tier) * elapsedMs
		c.currentFreqMHz = clamp(c.currentFreqMHz+delta, float64(c.minFreq), float64(c.maxFreq))
	}

	freq := uint32(math.Round(c.currentFreqMHz))
	return Decision{
		Tier:         c.tier,
		FrequencyMHz: freq,
		VoltageMV:    c.curve.Voltage(freq),
	}
}

func (c *Controller) selectTier(fastRatio, slowRatio float64) Tier {
	t := c.thresholds
	switch {
	case c.consecutiveHighSamples >= c.burstSamples && fastRatio >= t.Upper:
		return Burst
	case fastRatio >= t.Upper:
		return UpFast
	case fastRatio >= t.Medium:
		return UpMedium
	case fastRatio >= t.Slow:
		return UpSlow
	case fastRatio >= t.Crawl:
		return UpCrawl
	case slowRatio < t.Lower:
		return Down
	default:
		return Hold
	}
}

// rateForTier returns a signed MHz/ms rate: positive for the Up* tiers and
// Burst, negative for Down, zero for Hold.
func (c *Controller) rateForTier(t Tier) float64 {
	switch t {
	case Burst:
		return c.rates.Burst
	case UpFast:
		return c.rates.Up
	case UpMedium:
		return c.rates.UpMedium
	case UpSlow:
		return c.rates.UpSlow
	case UpCrawl:
		return c.rates.UpCrawl
	case Down:
		return -c.rates.Down
	default:
		return 0
	}
}

// CurrentFrequencyMHz exposes the fractional tracking value for tests and
// diagnostics; the actuated value is always its rounded projection.
func (c *Controller) CurrentFrequencyMHz() float64 { return c.currentFreqMHz }

// ConsecutiveHighSamples exposes the burst-confirmation counter for tests.
func (c *Controller) ConsecutiveHighSamples() uint32 { return c.consecutiveHighSamples }

// Stats returns a snapshot of the controller's running statistics.
func (c *Controller) Stats() Stats { return c.stats }

// RecordApply and RecordFailure let the caller (which owns the actuator)
// feed actuation outcomes back into the controller's statistics.
func (c *Controller) RecordApply(latency time.Duration) { c.stats.recordApply(latency) }
func (c *Controller) RecordFailure()                    { c.stats.recordFailure() }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
