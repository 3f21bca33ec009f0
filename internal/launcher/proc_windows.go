//go:build windows

package launcher

import "os"

// processAlive is best-effort on Windows: FindProcess succeeds for any pid,
// so ask the process for a signal-0 equivalent via its handle.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal(nil) is not supported on Windows; Release is the closest cheap
	// validity check available without importing golang.org/x/sys.
	defer func() { _ = p.Release() }()
	return true
}
