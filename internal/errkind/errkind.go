// Package errkind holds the sentinel errors shared across the governor's
// hardware-facing packages.
package errkind

import "errors"

var (
	// ErrHardwareAccess covers MMIO mapping failures, a missing PCI device, or a
	// missing hwmon node. Fatal at startup; retried per-tick for hwmon reads.
	ErrHardwareAccess = errors.New("hardware access")

	// ErrSysfsWrite covers a transient write failure against a sysfs file.
	ErrSysfsWrite = errors.New("sysfs write failed")

	// ErrPermissionDenied covers insufficient privileges on sysfs or MMIO.
	// Always fatal at startup.
	ErrPermissionDenied = errors.New("permission denied")
)
