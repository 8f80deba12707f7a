//go:build unix

package builder

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs cmd in its own process group so cancellation kills
// the whole tree.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
