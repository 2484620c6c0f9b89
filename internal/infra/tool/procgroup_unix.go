//go:build linux || darwin

package tool

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the tool in its own process group so that a
// kill also reaches helpers it spawned (soffice forks soffice.bin).
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
