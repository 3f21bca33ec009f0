//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches the child on Unix-like systems: a new
// session (setsid) so it has no controlling terminal and survives the
// supervisor's exit.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
