// Command bc250-gpu-governor runs the frequency/voltage governor, or, given
// a diagnostic subcommand, probes the fan hwmon node directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bc250-gpu-governor/internal/config"
	"bc250-gpu-governor/internal/governor"
	"bc250-gpu-governor/internal/hwmon"
	"bc250-gpu-governor/internal/mmio"
	"bc250-gpu-governor/internal/sysfsctl"
)

const (
	defaultBARPath = "/sys/bus/pci/devices/0000:04:00.0/resource0"
	defaultBAROff  = 0
	defaultOD      = "/sys/class/drm/card0/device/pp_od_clk_voltage"
)

func main() {
	var (
		configPath string
		barPath    string
		barOffset  int64
		odPath     string
	)

	logger := buildLogger()

	root := &cobra.Command{
		Use:   "bc250-gpu-governor",
		Short: "Frequency/voltage governor for the BC-250 integrated GPU",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGovernor(cmd.Context(), logger, configPath, barPath, barOffset, odPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to governor TOML config")
	root.PersistentFlags().StringVar(&barPath, "bar", defaultBARPath, "PCI resource file to map GRBM_STATUS from")
	root.PersistentFlags().Int64Var(&barOffset, "bar-offset", defaultBAROff, "byte offset into the mapped resource file")
	root.PersistentFlags().StringVar(&odPath, "od-path", defaultOD, "pp_od_clk_voltage sysfs path")

	root.AddCommand(
		listCmd(logger),
		currentFanCmd(logger),
		probeFansCmd(logger),
		pulseFanCmd(logger),
	)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func dutyFromPercent(pct int) int {
	return int(float64(pct) / 100.0 * 255.0)
}

func buildLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func runGovernor(ctx context.Context, logger *slog.Logger, configPath, barPath string, barOffset int64, odPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := mmio.Open(barPath, barOffset)
	if err != nil {
		return fmt.Errorf("open register BAR: %w", err)
	}
	defer reg.Close()

	variant, err := sysfsctl.ProbeVariant(odPath)
	if err != nil {
		return fmt.Errorf("probe OD variant: %w", err)
	}
	act := sysfsctl.New(odPath, variant, cfg.FrequencyThresholds, cfg.Timing.Intervals, cfg.SafePoints[0].Voltage)

	fans, err := hwmon.Discover()
	if err != nil {
		return fmt.Errorf("discover fan controller: %w", err)
	}

	g := governor.New(cfg, logger, reg, act, fans)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return g.Run(runCtx)
}

func listCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered hwmon fan channels and the current temperature",
		RunE: func(cmd *cobra.Command, args []string) error {
			fans, err := hwmon.Discover()
			if err != nil {
				return err
			}
			for _, ch := range fans.Channels() {
				fmt.Printf("channel %d: %s (enable: %s)\n", ch.Index, ch.PWMPath, ch.EnablePath)
			}
			tempC, err := fans.TemperatureC()
			if err != nil {
				return err
			}
			fmt.Printf("temperature: %.1fC\n", tempC)
			return nil
		},
	}
}

func currentFanCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "current-fan",
		Short: "Print each discovered channel's current PWM duty cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			fans, err := hwmon.Discover()
			if err != nil {
				return err
			}
			for _, ch := range fans.Channels() {
				duty, err := fans.CurrentPWM(ch)
				if err != nil {
					fmt.Printf("channel %d: error: %v\n", ch.Index, err)
					continue
				}
				fmt.Printf("channel %d: %d/255 (%.0f%%)\n", ch.Index, duty, float64(duty)/255.0*100)
			}
			return nil
		},
	}
}

func probeFansCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "probe-fans",
		Short: "Briefly pulse each discovered fan channel to identify it",
		RunE: func(cmd *cobra.Command, args []string) error {
			fans, err := hwmon.Discover()
			if err != nil {
				return err
			}
			defer fans.Shutdown()
			for i := range fans.Channels() {
				ch := &fans.Channels()[i]
				fmt.Printf("pulsing channel %d to 40%% for 5s\n", ch.Index)
				if err := fans.SetPWM(ch, dutyFromPercent(40)); err != nil {
					return err
				}
				time.Sleep(5 * time.Second)
				if err := fans.SetPWM(ch, 0); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func pulseFanCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "pulse-fan <index>",
		Short: "Pulse one discovered fan channel to 25% then 100%, then restore it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parse index: %w", err)
			}

			fans, err := hwmon.Discover()
			if err != nil {
				return err
			}
			channels := fans.Channels()
			for i := range channels {
				if channels[i].Index != idx {
					continue
				}
				ch := &channels[i]
				prior, err := fans.CurrentPWM(*ch)
				if err != nil {
					return err
				}
				for _, pct := range []int{25, 100} {
					fmt.Printf("channel %d: %d%%\n", idx, pct)
					if err := fans.SetPWM(ch, dutyFromPercent(pct)); err != nil {
						return err
					}
					time.Sleep(5 * time.Second)
				}
				return fans.SetPWM(ch, prior)
			}
			return fmt.Errorf("no channel with index %d", idx)
		},
	}
}
