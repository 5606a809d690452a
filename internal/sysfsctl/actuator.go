// Package sysfsctl drives amdgpu's pp_od_clk_voltage text protocol and
// rate-limits commits through a narrow actuator wrapping a single
// write-path resource.
package sysfsctl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"bc250-gpu-governor/internal/config"
	"bc250-gpu-governor/internal/errkind"
)

// Variant names which OD voltage-curve sub-command the installed amdgpu
// driver accepts: older kernels use "vc", newer ones "vo".
type Variant string

const (
	VariantVC      Variant = "vc"
	VariantVO      Variant = "vo"
	VariantUnknown Variant = ""
)

// Actuator writes frequency/voltage targets to pp_od_clk_voltage, holding
// back commits that don't clear the configured rate-limit thresholds.
type Actuator struct {
	path    string
	variant Variant

	// baselineVoltageMV is the reference point the "vo" variant's single
	// offset is computed against, since OD_VDDGFX_OFFSET shifts the whole
	// factory curve by one constant rather than accepting an absolute
	// per-point voltage. It is the lowest safe point's voltage.
	baselineVoltageMV uint32

	adjustThreshold   uint32
	finetuneThreshold uint32
	adjustInterval    time.Duration
	finetuneInterval  time.Duration

	lastCommittedFreq uint32
	lastCommitAt      time.Time
	committed         bool
}

// New builds an Actuator against path (typically
// /sys/class/drm/card*/device/pp_od_clk_voltage) using the probed variant,
// the configured rate-limit thresholds, and the baseline voltage used as
// the zero point for "vo" offset commits.
func New(path string, variant Variant, thresholds config.FrequencyThresholds, intervals config.Intervals, baselineVoltageMV uint32) *Actuator {
	return &Actuator{
		path:              path,
		variant:           variant,
		baselineVoltageMV: baselineVoltageMV,
		adjustThreshold:   thresholds.AdjustMHz,
		finetuneThreshold: thresholds.FinetuneMHz,
		adjustInterval:    intervals.Adjust(),
		finetuneInterval:  intervals.Finetune(),
	}
}

// ProbeVariant reads pp_od_clk_voltage and inspects its section names to
// decide which voltage-curve sub-command the running kernel accepts. A
// section named OD_VDDC_CURVE accepts "vc" (absolute per-point voltage);
// OD_VDDGFX_OFFSET accepts "vo" (a single offset applied to the whole
// curve).
func ProbeVariant(path string) (Variant, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return VariantUnknown, fmt.Errorf("%w: read %s: %v", errkind.ErrPermissionDenied, path, err)
		}
		return VariantUnknown, fmt.Errorf("%w: read %s: %v", errkind.ErrSysfsWrite, path, err)
	}

	switch {
	case strings.Contains(string(b), "OD_VDDC_CURVE"):
		return VariantVC, nil
	case strings.Contains(string(b), "OD_VDDGFX_OFFSET"):
		return VariantVO, nil
	default:
		return VariantUnknown, fmt.Errorf("%w: no recognized pp_od_clk_voltage section in %s", errkind.ErrSysfsWrite, path)
	}
}

// Offer presents a target frequency/voltage for possible commit. It reports
// whether a commit was actually issued this call, letting the caller decide
// whether to record actuation latency.
func (a *Actuator) Offer(freqMHz, voltageMV uint32, now time.Time) (committed bool, err error) {
	if a.committed {
		delta := absDiff(freqMHz, a.lastCommittedFreq)
		elapsed := now.Sub(a.lastCommitAt)
		if delta == 0 {
			return false, nil
		}
		clearsAdjust := delta >= a.adjustThreshold || elapsed >= a.adjustInterval
		clearsFinetune := elapsed >= a.finetuneInterval && delta >= a.finetuneThreshold
		if !clearsAdjust && !clearsFinetune {
			return false, nil
		}
	}
	if err := a.apply(freqMHz, voltageMV, now); err != nil {
		return false, err
	}
	return true, nil
}

// Park unconditionally commits freqMHz/voltageMV, bypassing the rate-limit
// gate Offer applies. Used to force the hardware back to a safe point on
// shutdown.
func (a *Actuator) Park(freqMHz, voltageMV uint32) error {
	return a.apply(freqMHz, voltageMV, time.Now())
}

func (a *Actuator) apply(freqMHz, voltageMV uint32, now time.Time) error {
	if err := a.commit(freqMHz, voltageMV); err != nil {
		return err
	}
	a.lastCommittedFreq = freqMHz
	a.lastCommitAt = now
	a.committed = true
	return nil
}

func (a *Actuator) commit(freqMHz, voltageMV uint32) error {
	for _, line := range a.commandLines(freqMHz, voltageMV) {
		if err := writeLine(a.path, line); err != nil {
			return err
		}
	}
	return nil
}

// commandLines builds the pp_od_clk_voltage command sequence for a target
// frequency/voltage: the SCLK level/frequency line, then a variant-specific
// voltage line ("vc" takes an absolute per-point voltage, "vo" takes a
// single offset from the baseline since it shifts the whole factory curve
// by one constant), then "c" to commit.
func (a *Actuator) commandLines(freqMHz, voltageMV uint32) []string {
	lines := []string{fmt.Sprintf("s 0 %d", freqMHz)}
	switch a.variant {
	case VariantVC:
		lines = append(lines, fmt.Sprintf("vc 0 %d %d", freqMHz, voltageMV))
	case VariantVO:
		offset := int64(voltageMV) - int64(a.baselineVoltageMV)
		lines = append(lines, fmt.Sprintf("vo %d", offset))
	}
	return append(lines, "c")
}

func writeLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", errkind.ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: open %s: %v", errkind.ErrSysfsWrite, path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("%w: write %s to %s: %v", errkind.ErrSysfsWrite, line, path, err)
	}
	return nil
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
