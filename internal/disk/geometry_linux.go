//go:build linux

package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

func blockDeviceSectorSize(f *os.File) (uint32, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err == nil && size > 0 {
		return uint32(size), nil
	}

	// If ioctl fails, fallback to reading from sysfs
	data, readErr := os.ReadFile(filepath.Join(sysfsBlockDir(f.Name()), "queue", "logical_block_size"))
	if readErr == nil {
		if sz, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && sz > 0 {
			return uint32(sz), nil
		}
	}
	if err == nil {
		err = fmt.Errorf("BLKSSZGET returned %d", size)
	}
	return 0, fmt.Errorf("ioctl BLKSSZGET failed: %w", err)
}

func blockDeviceSize(f *os.File) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, fmt.Errorf("ioctl BLKGETSIZE64 failed: %w", errno)
	}
	return size, nil
}

func discardPageCache(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}

// sysfsBlockDir maps /dev/sdb to /sys/class/block/sdb.
func sysfsBlockDir(devPath string) string {
	if resolved, err := filepath.EvalSymlinks(devPath); err == nil {
		devPath = resolved
	}
	return filepath.Join("/sys/class/block", filepath.Base(devPath))
}

func classifyBlockDevice(devPath string) types.DeviceKind {
	dir := sysfsBlockDir(devPath)
	name := filepath.Base(dir)

	if strings.HasPrefix(name, "nvme") {
		return types.DeviceKindNVMe
	}
	if link, err := filepath.EvalSymlinks(dir); err == nil && strings.Contains(link, "/usb") {
		return types.DeviceKindUSB
	}
	if data, err := os.ReadFile(filepath.Join(dir, "removable")); err == nil && strings.TrimSpace(string(data)) == "1" {
		return types.DeviceKindRemovable
	}
	if _, err := os.Stat(dir); err != nil {
		return types.DeviceKindUnknown
	}
	return types.DeviceKindFixed
}
