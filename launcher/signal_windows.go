//go:build windows

package launcher

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/windows"
)

// sendTerminate asks Windows to deliver a CTRL_BREAK_EVENT to the process's
// console process group. Windows has no SIGTERM; CTRL_BREAK_EVENT is the
// closest analogue a console process can trap and act on gracefully.
func sendTerminate(p *os.Process) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid)); err != nil {
		return fmt.Errorf("launcher: generate ctrl-break for pid %d: %w", p.Pid, err)
	}
	return nil
}

// treeKillWindows substitutes for POSIX signal delivery on Windows per
// SPEC_FULL §4.1.1: "invoke a tree-kill utility on the pid" for any signal
// other than interrupt. taskkill /T kills the full process tree, which
// matters because mpiexec/ssh children on Windows commonly spawn
// grandchildren that do not exit on their own when the immediate child dies.
func treeKillWindows(pid int) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", pid))
	return cmd.Run()
}
