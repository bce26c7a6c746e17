//go:build windows

package ffmpeg

import (
	"os"
	"os/exec"
)

// Process groups are a POSIX concept; on Windows only the direct child is
// addressed.
func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup terminates the process. Windows has no reliable graceful
// signal, so only the forced path does anything.
func signalGroup(pid int, force bool) error {
	if pid <= 0 || !force {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}

// processAlive reports whether a process handle can still be opened.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}
	_ = proc.Release()
	return true
}
