//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// killGroupOnCancel starts the shell in its own process group and kills the whole group
// when the context is done, so background children do not outlive the build step.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
