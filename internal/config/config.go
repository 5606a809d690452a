// Package config loads and validates the governor's TOML configuration.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultPath = "/etc/bc-250-rust-governor/config.toml"

// SafePoint is an (frequency, voltage) pair known to be stable on the hardware.
type SafePoint struct {
	Frequency uint32 `toml:"frequency"`
	Voltage   uint32 `toml:"voltage"`
}

type Intervals struct {
	SampleMicros   uint64 `toml:"sample"`
	AdjustMicros   uint64 `toml:"adjust"`
	FinetuneMicros uint64 `toml:"finetune"`
}

type RampRates struct {
	Burst    float64 `toml:"burst"`
	Up       float64 `toml:"up"`
	UpMedium float64 `toml:"up-medium"`
	UpSlow   float64 `toml:"up-slow"`
	UpCrawl  float64 `toml:"up-crawl"`
	Down     float64 `toml:"down"`
}

type Timing struct {
	BurstSamples    uint32    `toml:"burst-samples"`
	RampUpSamples   uint32    `toml:"ramp-up-samples"`
	RampDownSamples uint32    `toml:"ramp-down-samples"`
	Intervals       Intervals `toml:"intervals"`
	RampRates       RampRates `toml:"ramp-rates"`
}

type FrequencyThresholds struct {
	AdjustMHz   uint32 `toml:"adjust"`
	FinetuneMHz uint32 `toml:"finetune"`
}

type LoadTarget struct {
	Upper  float64 `toml:"upper"`
	Medium float64 `toml:"medium"`
	Slow   float64 `toml:"slow"`
	Crawl  float64 `toml:"crawl"`
	Lower  float64 `toml:"lower"`
}

type PerformanceMode struct {
	Enabled            bool   `toml:"enabled"`
	ControlFile        string `toml:"control_file"`
	CheckIntervalMilli uint64 `toml:"check_interval"`
}

type FanControl struct {
	Enabled bool        `toml:"enabled"`
	Curve   [][2]float64 `toml:"curve"`
}

type Thermal struct {
	MonitorIntervalMilli uint64     `toml:"monitor_interval"`
	MaxSafeTempC         float32    `toml:"max_safe_temp"`
	EmergencyTempC       float32    `toml:"emergency_temp"`
	FanControlIndex      uint32     `toml:"fan_control_index"`
	FanControl           FanControl `toml:"fan-control"`

	// HysteresisC and EmergencyCooldown are optional; they default below when
	// left unset (see DESIGN.md Open Questions).
	HysteresisC       float32 `toml:"hysteresis"`
	EmergencyCooldown uint64  `toml:"emergency_cooldown_ms"`
}

type Config struct {
	SafePoints          []SafePoint         `toml:"safe-points"`
	Timing              Timing              `toml:"timing"`
	FrequencyThresholds FrequencyThresholds `toml:"frequency-thresholds"`
	LoadTarget          LoadTarget          `toml:"load-target"`
	PerformanceMode     PerformanceMode     `toml:"performance-mode"`
	Thermal             Thermal             `toml:"thermal"`
}

// Load reads and validates the TOML config at path, applying defaults for
// any unset ambient fields.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode %s: %v", ErrConfigInvalid, path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Thermal.HysteresisC == 0 {
		c.Thermal.HysteresisC = 5.0
	}
	if c.Thermal.EmergencyCooldown == 0 {
		c.Thermal.EmergencyCooldown = 2 * c.Thermal.MonitorIntervalMilli
	}
	if c.PerformanceMode.ControlFile == "" {
		c.PerformanceMode.ControlFile = "/tmp/bc250-max-performance"
	}
}

// Validate enforces the SafePoint, LoadTarget (each value in [0,1]), and
// FanCurve invariants, sorting safe points ascending by frequency first.
func (c *Config) Validate() error {
	if len(c.SafePoints) < 2 {
		return fmt.Errorf("%w: at least two safe-points are required, got %d", ErrConfigInvalid, len(c.SafePoints))
	}
	sort.Slice(c.SafePoints, func(i, j int) bool {
		return c.SafePoints[i].Frequency < c.SafePoints[j].Frequency
	})
	for i := 1; i < len(c.SafePoints); i++ {
		prev, cur := c.SafePoints[i-1], c.SafePoints[i]
		if cur.Frequency <= prev.Frequency {
			return fmt.Errorf("%w: safe-point frequencies must be strictly increasing (%d then %d)", ErrConfigInvalid, prev.Frequency, cur.Frequency)
		}
		if cur.Voltage < prev.Voltage {
			return fmt.Errorf("%w: safe-point voltages must be non-decreasing (%dmV at %dMHz then %dmV at %dMHz)", ErrConfigInvalid, prev.Voltage, prev.Frequency, cur.Voltage, cur.Frequency)
		}
	}

	if c.Timing.RampUpSamples == 0 || c.Timing.RampDownSamples == 0 {
		return fmt.Errorf("%w: ramp-up-samples and ramp-down-samples must be > 0", ErrConfigInvalid)
	}
	if c.Timing.Intervals.SampleMicros == 0 {
		return fmt.Errorf("%w: timing.intervals.sample must be > 0", ErrConfigInvalid)
	}

	lt := c.LoadTarget
	for _, v := range []float64{lt.Upper, lt.Medium, lt.Slow, lt.Crawl, lt.Lower} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: load-target value %v out of range [0,1]", ErrConfigInvalid, v)
		}
	}

	if c.Thermal.FanControl.Enabled {
		curve := c.Thermal.FanControl.Curve
		if len(curve) < 2 {
			return fmt.Errorf("%w: thermal.fan-control.curve needs at least two points when enabled", ErrConfigInvalid)
		}
		for i := 1; i < len(curve); i++ {
			if curve[i][0] <= curve[i-1][0] {
				return fmt.Errorf("%w: fan curve temperatures must be strictly increasing", ErrConfigInvalid)
			}
			if curve[i][1] < curve[i-1][1] {
				return fmt.Errorf("%w: fan curve percentages must be non-decreasing", ErrConfigInvalid)
			}
		}
		for _, pt := range curve {
			if pt[1] < 0 || pt[1] > 100 {
				return fmt.Errorf("%w: fan curve percentage %v out of range [0,100]", ErrConfigInvalid, pt[1])
			}
		}
	}

	if c.Thermal.EmergencyTempC <= c.Thermal.MaxSafeTempC {
		return fmt.Errorf("%w: thermal.emergency_temp must exceed thermal.max_safe_temp", ErrConfigInvalid)
	}

	return nil
}

func (c Config) MinFrequencyMHz() uint32 { return c.SafePoints[0].Frequency }
func (c Config) MaxFrequencyMHz() uint32 { return c.SafePoints[len(c.SafePoints)-1].Frequency }

func (iv Intervals) Sample() time.Duration   { return time.Duration(iv.SampleMicros) * time.Microsecond }
func (iv Intervals) Adjust() time.Duration   { return time.Duration(iv.AdjustMicros) * time.Microsecond }
func (iv Intervals) Finetune() time.Duration { return time.Duration(iv.FinetuneMicros) * time.Microsecond }

func (pm PerformanceMode) CheckInterval() time.Duration {
	return time.Duration(pm.CheckIntervalMilli) * time.Millisecond
}

func (t Thermal) MonitorInterval() time.Duration {
	return time.Duration(t.MonitorIntervalMilli) * time.Millisecond
}

func (t Thermal) EmergencyCooldownDuration() time.Duration {
	return time.Duration(t.EmergencyCooldown) * time.Millisecond
}

// DecodeString lets tests load a Config from an in-memory TOML string without
// touching the filesystem.
func DecodeString(data string) (Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
