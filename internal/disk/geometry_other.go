//go:build !linux

package disk

import (
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Without a platform ioctl the logical sector size cannot be queried.
func blockDeviceSectorSize(f *os.File) (uint32, error) {
	return types.MinSectorSize, nil
}

func blockDeviceSize(f *os.File) (uint64, error) {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek to end failed: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to start failed: %w", err)
	}
	return uint64(end), nil
}

func discardPageCache(f *os.File) error {
	return nil
}

func classifyBlockDevice(devPath string) types.DeviceKind {
	return types.DeviceKindUnknown
}
