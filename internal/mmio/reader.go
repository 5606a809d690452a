// Package mmio maps the GPU's register BAR and samples the GRBM_STATUS
// busy bit.
package mmio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"bc250-gpu-governor/internal/errkind"
)

// grbmStatusOffset and guiActiveBit are AMD GRBM_STATUS register constants.
const (
	grbmStatusOffset = 0x2004
	guiActiveBit     = 31
	regionSize       = 0x5000 // covers GRBM_STATUS with headroom for alignment
)

// RegisterReader holds an mmap'd view of the GPU's register BAR.
type RegisterReader struct {
	region []byte
}

// Open mmaps regionSize bytes of barPath (typically a PCI resource file
// under /sys/bus/pci/devices/<addr>/resource0) starting at barOffset.
func Open(barPath string, barOffset int64) (*RegisterReader, error) {
	f, err := os.OpenFile(barPath, os.O_RDONLY, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: open %s: %v", errkind.ErrPermissionDenied, barPath, err)
		}
		return nil, fmt.Errorf("%w: open %s: %v", errkind.ErrHardwareAccess, barPath, err)
	}
	defer f.Close()

	region, err := unix.Mmap(int(f.Fd()), barOffset, regionSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		if err == unix.EACCES || err == unix.EPERM {
			return nil, fmt.Errorf("%w: mmap %s: %v", errkind.ErrPermissionDenied, barPath, err)
		}
		return nil, fmt.Errorf("%w: mmap %s: %v", errkind.ErrHardwareAccess, barPath, err)
	}

	return &RegisterReader{region: region}, nil
}

// Close unmaps the register region.
func (r *RegisterReader) Close() error {
	if r.region == nil {
		return nil
	}
	err := unix.Munmap(r.region)
	r.region = nil
	return err
}

// Busy samples GRBM_STATUS and reports whether the GUI_ACTIVE bit is set,
// i.e. whether the graphics pipe issued work during the last register cycle.
func (r *RegisterReader) Busy() (bool, error) {
	if len(r.region) < grbmStatusOffset+4 {
		return false, fmt.Errorf("%w: register region too small", errkind.ErrHardwareAccess)
	}
	raw := readLE32(r.region[grbmStatusOffset : grbmStatusOffset+4])
	return raw&(1<<guiActiveBit) != 0, nil
}

func readLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
