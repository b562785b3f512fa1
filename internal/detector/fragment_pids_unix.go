//go:build !windows

package detector

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

// matchingPids lists processes whose full command line contains frag.
func matchingPids(frag string) ([]int, error) {
	// #nosec G204 -- fragment is an operator-configured filesystem path
	out, err := exec.Command("pgrep", "-f", "--", frag).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() == 1 {
			// pgrep exits 1 when nothing matched
			return nil, nil
		}
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
