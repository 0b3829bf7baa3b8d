//go:build windows
// +build windows

package checks

import (
	"path/filepath"
	"syscall"
	"unsafe"
)

var (
	kernel32           = syscall.NewLazyDLL("kernel32.dll")
	getDiskFreeSpaceEx = kernel32.NewProc("GetDiskFreeSpaceExW")
)

// CheckDiskSpace checks available disk space for a given path (Windows implementation)
func CheckDiskSpace(path string) *DiskSpaceCheck {
	// Get absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	// Get the drive root (e.g., "C:\")
	vol := filepath.VolumeName(absPath)
	if vol == "" {
		// If no volume, try current directory
		vol = "."
	}
	
	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes uint64

	// Call Windows API
	pathPtr, _ := syscall.UTF16PtrFromString(vol)
	ret, _, _ := getDiskFreeSpaceEx.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalNumberOfBytes)),
		uintptr(unsafe.Pointer(&totalNumberOfFreeBytes)))

	if ret == 0 {
		// API call failed, return error state
		return &DiskSpaceCheck{
			Path:       absPath,
			Critical:   true,
			Sufficient: false,
		}
	}

	// Calculate usage
	usedBytes := totalNumberOfBytes - totalNumberOfFreeBytes
	usedPercent := float64(usedBytes) / float64(totalNumberOfBytes) * 100

	check := &DiskSpaceCheck{
		Path:           absPath,
		TotalBytes:     totalNumberOfBytes,
		AvailableBytes: freeBytesAvailable,
		UsedBytes:      usedBytes,
		UsedPercent:    usedPercent,
	}

	// Determine status thresholds
	check.Critical = usedPercent >= 95
	check.Warning = usedPercent >= 80 && !check.Critical
	check.Sufficient = !check.Critical && !check.Warning

	return check
}

