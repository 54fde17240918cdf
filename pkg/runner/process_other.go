//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on non-Unix platforms.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup signals the process directly on non-Unix platforms.
func killProcessGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// killProcessGroupWithSIGKILL kills the process directly.
func killProcessGroupWithSIGKILL(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// getInterruptSignals returns the signals to listen for.
func getInterruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
