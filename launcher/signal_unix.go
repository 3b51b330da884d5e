//go:build !windows

package launcher

import (
	"os"
	"syscall"
)

// sendTerminate delivers SIGTERM on POSIX platforms.
func sendTerminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// treeKillWindows is never invoked outside runtime.GOOS == "windows"; this
// stub exists only so local.go compiles uniformly across platforms.
func treeKillWindows(pid int) error {
	return nil
}
