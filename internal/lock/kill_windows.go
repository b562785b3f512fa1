//go:build windows

package lock

import (
	"os"
	"time"
)

func terminate(pids []int, grace time.Duration) {
	for _, pid := range pids {
		if p, err := os.FindProcess(pid); err == nil {
			_ = p.Kill()
		}
	}
	_ = grace
}
