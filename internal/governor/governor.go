// Package governor wires the control, thermal, and performance-lock loops
// together as independent ticker loops under one errgroup.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bc250-gpu-governor/internal/config"
	"bc250-gpu-governor/internal/errkind"
	"bc250-gpu-governor/internal/hwmon"
	"bc250-gpu-governor/internal/load"
	"bc250-gpu-governor/internal/mmio"
	"bc250-gpu-governor/internal/perflock"
	"bc250-gpu-governor/internal/ramp"
	"bc250-gpu-governor/internal/sysfsctl"
	"bc250-gpu-governor/internal/thermal"
	"bc250-gpu-governor/internal/voltage"
)

// Governor owns the sampled-sensor loops and the one piece of state allowed
// to cross loop boundaries without a mutex: an atomic flag per cross-loop
// signal, single-writer/single-reader.
type Governor struct {
	cfg    config.Config
	logger *slog.Logger

	reg   *mmio.RegisterReader
	act   *sysfsctl.Actuator
	fans  *hwmon.Driver
	lock  *perflock.Watcher
	estim *load.Estimator
	ramp  *ramp.Controller
	therm *thermal.Supervisor
	curve voltage.Curve

	lastEmergency atomic.Bool
}

// New assembles a Governor from an already-validated Config and the probed
// hardware handles. Probing (MMIO mapping, sysfs variant detection, hwmon
// discovery) happens in cmd/bc250-gpu-governor, ahead of this constructor,
// so that startup failures are reported before any loop starts.
func New(cfg config.Config, logger *slog.Logger, reg *mmio.RegisterReader, act *sysfsctl.Actuator, fans *hwmon.Driver) *Governor {
	curve := voltage.NewCurve(cfg.SafePoints)
	return &Governor{
		cfg:    cfg,
		logger: logger,
		reg:    reg,
		act:    act,
		fans:   fans,
		lock:   perflock.New(cfg.PerformanceMode.ControlFile, cfg.PerformanceMode.Enabled),
		estim:  load.NewEstimator(int(cfg.Timing.RampUpSamples), int(cfg.Timing.RampDownSamples)),
		ramp:   ramp.NewController(curve, cfg.Timing, cfg.LoadTarget),
		therm:  thermal.NewSupervisor(cfg.Thermal),
		curve:  curve,
	}
}

// Run starts the control, thermal, and performance-lock loops and blocks
// until ctx is canceled or one loop returns a non-nil error, at which point
// the others are canceled too (errgroup's shared context).
func (g *Governor) Run(ctx context.Context) error {
	g.logger.Info("starting governor loops",
		"sample_interval", g.cfg.Timing.Intervals.Sample(),
		"monitor_interval", g.cfg.Thermal.MonitorInterval(),
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.runControlLoop(gctx) })
	eg.Go(func() error { return g.runThermalLoop(gctx) })
	if g.cfg.PerformanceMode.Enabled {
		eg.Go(func() error { return g.runPerfLockLoop(gctx) })
	}

	err := eg.Wait()
	g.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (g *Governor) runControlLoop(ctx context.Context) error {
	interval := g.cfg.Timing.Intervals.Sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if err := g.controlTick(ctx, now, elapsed); err != nil {
				if errors.Is(err, errkind.ErrPermissionDenied) {
					return err
				}
				g.logger.Error("control tick failed", "error", err)
			}
		}
	}
}

func (g *Governor) controlTick(ctx context.Context, now time.Time, elapsed time.Duration) error {
	busy, err := g.reg.Busy()
	if err != nil {
		return fmt.Errorf("sample register: %w", err)
	}
	fastRatio, slowRatio := g.estim.Push(busy)
	if !g.estim.Primed() {
		return nil
	}

	decision := g.ramp.Tick(fastRatio, slowRatio, elapsed, g.lock.Locked(), g.lastEmergency.Load())

	start := time.Now()
	committed, err := g.act.Offer(decision.FrequencyMHz, decision.VoltageMV, now)
	if err != nil {
		g.ramp.RecordFailure()
		return fmt.Errorf("commit frequency: %w", err)
	}
	if committed {
		g.ramp.RecordApply(time.Since(start))
		g.logger.Debug("committed frequency",
			"tier", decision.Tier.String(),
			"freq_mhz", decision.FrequencyMHz,
			"voltage_mv", decision.VoltageMV,
		)
	}
	return nil
}

func (g *Governor) runThermalLoop(ctx context.Context) error {
	interval := g.cfg.Thermal.MonitorInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := g.thermalTick(now); err != nil {
				if errors.Is(err, errkind.ErrPermissionDenied) {
					return err
				}
				g.logger.Error("thermal tick failed", "error", err)
			}
		}
	}
}

func (g *Governor) thermalTick(now time.Time) error {
	tempC, err := g.fans.TemperatureC()
	if err != nil {
		return fmt.Errorf("read temperature: %w", err)
	}

	state, fanPercent := g.therm.Observe(tempC, now)
	g.lastEmergency.Store(state == thermal.Emergency)

	if !g.cfg.Thermal.FanControl.Enabled {
		return nil
	}
	duty := int((fanPercent / 100.0) * 255.0)
	for i := range g.fans.Channels() {
		if err := g.fans.SetPWM(&g.fans.Channels()[i], duty); err != nil {
			return fmt.Errorf("set fan duty: %w", err)
		}
	}
	if state == thermal.Emergency {
		g.logger.Warn("thermal emergency latched", "temp_c", tempC)
	}
	return nil
}

func (g *Governor) runPerfLockLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.PerformanceMode.CheckInterval())
	defer ticker.Stop()

	g.lock.Poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.lock.Poll()
		}
	}
}

// shutdown restores hardware to a safe idle state: the OD table parked at
// the lowest safe point and fans back to their originally-observed control
// mode. The last-committed OD table otherwise persists after this process
// exits, so the frequency/voltage actuator must be driven down explicitly
// rather than left at whatever it last ran at.
func (g *Governor) shutdown() {
	minFreq := g.curve.MinFrequencyMHz()
	if err := g.act.Park(minFreq, g.curve.Voltage(minFreq)); err != nil {
		g.logger.Error("failed to park GPU at lowest safe point", "error", err)
	}
	g.fans.Shutdown()
	g.logger.Info("governor stopped", "stats", g.ramp.Stats())
}

// Stats exposes the ramp controller's running statistics for diagnostics.
func (g *Governor) Stats() ramp.Stats { return g.ramp.Stats() }
