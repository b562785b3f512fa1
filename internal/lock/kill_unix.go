//go:build !windows

package lock

import (
	"syscall"
	"time"
)

// terminate asks the given processes to exit, waits up to grace, then
// kills survivors. Graceful first: a browser flushing its profile on
// SIGTERM leaves less corruption behind than one that was SIGKILLed.
func terminate(pids []int, grace time.Duration) {
	for _, pid := range pids {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !anyAlive(pids) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	for _, pid := range pids {
		if alive(pid) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}
}

func anyAlive(pids []int) bool {
	for _, pid := range pids {
		if alive(pid) {
			return true
		}
	}
	return false
}

func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
