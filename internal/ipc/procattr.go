package ipc

import (
	"os/exec"
	"syscall"
)

// setProcAttr detaches the daemon from the caller's process group so shell
// job control and terminal signals never reach it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
