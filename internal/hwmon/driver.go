// Package hwmon discovers and drives the fan controller exposed through
// Linux's hwmon class.
package hwmon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bc250-gpu-governor/internal/errkind"
)

// knownFanChipNames lists the hwmon "name" file contents treated as fan
// controllers worth probing.
var knownFanChipNames = []string{"nct6687", "nct6686"}

// knownTempChipNames lists hwmon chips treated as GPU/APU temperature
// sources.
var knownTempChipNames = []string{"amdgpu", "k10temp"}

// Channel is one pwm* output discovered under a fan-controller hwmon node.
type Channel struct {
	Index      int
	PWMPath    string
	EnablePath string
	origEnable int
	haveOrig   bool
}

// Driver owns one fan-controller hwmon node's discovered channels and one
// temperature hwmon node for readback.
type Driver struct {
	fanDir   string
	channels []Channel

	tempPath string
}

// Discover globs /sys/class/hwmon for a known fan-controller chip and a
// known temperature chip, and enumerates the fan chip's pwm channels.
func Discover() (*Driver, error) {
	return DiscoverIn("/sys/class/hwmon")
}

// DiscoverIn runs the same discovery as Discover but under an arbitrary
// root, letting tests substitute a fake hwmon tree.
func DiscoverIn(root string) (*Driver, error) {
	dirs, err := filepath.Glob(filepath.Join(root, "hwmon*"))
	if err != nil {
		return nil, fmt.Errorf("%w: glob hwmon: %v", errkind.ErrHardwareAccess, err)
	}

	d := &Driver{}
	for _, dir := range dirs {
		name := readName(dir)
		if d.fanDir == "" && matches(name, knownFanChipNames) {
			d.fanDir = dir
			d.channels = enumerateChannels(dir)
		}
		if d.tempPath == "" && matches(name, knownTempChipNames) {
			if p := firstTempInput(dir); p != "" {
				d.tempPath = p
			}
		}
	}

	if d.fanDir == "" {
		return nil, fmt.Errorf("%w: no known fan controller hwmon node found", errkind.ErrHardwareAccess)
	}
	if d.tempPath == "" {
		return nil, fmt.Errorf("%w: no known temperature hwmon node found", errkind.ErrHardwareAccess)
	}
	return d, nil
}

func readName(dir string) string {
	b, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func matches(name string, known []string) bool {
	for _, k := range known {
		if name == k {
			return true
		}
	}
	return false
}

func enumerateChannels(dir string) []Channel {
	entries, err := filepath.Glob(filepath.Join(dir, "pwm[0-9]*"))
	if err != nil {
		return nil
	}
	var channels []Channel
	for _, p := range entries {
		base := filepath.Base(p)
		if strings.Contains(base, "_") {
			continue // skip pwmN_enable/_mode entries, only want the bare pwmN files
		}
		idxStr := strings.TrimPrefix(base, "pwm")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		channels = append(channels, Channel{
			Index:      idx,
			PWMPath:    p,
			EnablePath: p + "_enable",
		})
	}
	return channels
}

func firstTempInput(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "temp[0-9]*_input"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// Channels lists the discovered pwm channels.
func (d *Driver) Channels() []Channel { return d.channels }

// TemperatureC reads the discovered temperature sensor in degrees Celsius.
func (d *Driver) TemperatureC() (float64, error) {
	milli, err := readInt(d.tempPath)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", errkind.ErrHardwareAccess, d.tempPath, err)
	}
	return float64(milli) / 1000.0, nil
}

// CurrentPWM reads a channel's current duty cycle in [0, 255].
func (d *Driver) CurrentPWM(ch Channel) (int, error) {
	return readInt(ch.PWMPath)
}

// SetPWM writes a channel's duty cycle, first switching it to manual mode
// (enable=1) and recording the originally-observed enable value the first
// time the channel is touched, so Shutdown can restore it.
func (d *Driver) SetPWM(ch *Channel, dutyCycle int) error {
	if !ch.haveOrig {
		if v, err := readInt(ch.EnablePath); err == nil {
			ch.origEnable = v
			ch.haveOrig = true
		}
	}
	if err := writeInt(ch.EnablePath, 1); err != nil {
		return fmt.Errorf("%w: enable manual mode on %s: %v", errkind.ErrSysfsWrite, ch.EnablePath, err)
	}
	if dutyCycle < 0 {
		dutyCycle = 0
	}
	if dutyCycle > 255 {
		dutyCycle = 255
	}
	if err := writeInt(ch.PWMPath, dutyCycle); err != nil {
		return fmt.Errorf("%w: write %s: %v", errkind.ErrSysfsWrite, ch.PWMPath, err)
	}
	return nil
}

// Shutdown restores every touched channel's originally-observed enable mode
// (typically automatic/BIOS control), best-effort.
func (d *Driver) Shutdown() {
	for i := range d.channels {
		ch := &d.channels[i]
		if !ch.haveOrig {
			continue
		}
		_ = writeInt(ch.EnablePath, ch.origEnable)
	}
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func writeInt(path string, v int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(v)), 0)
}
