//go:build unix

package ffmpeg

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the child in its own process group so termination
// signals reach FFmpeg and any helpers it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup signals the whole process group of pid. force selects SIGKILL
// over SIGTERM. A process that already exited is not an error.
func signalGroup(pid int, force bool) error {
	if pid <= 0 {
		return nil
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}

	// Setpgid at spawn time makes the child a group leader with PGID = PID.
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		// Group lookup failed, fall back to the single process
		if kerr := syscall.Kill(pid, sig); kerr != nil && !errors.Is(kerr, syscall.ESRCH) {
			return kerr
		}
		return nil
	}

	// Negative PGID addresses the whole group
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// processAlive checks the process table with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
