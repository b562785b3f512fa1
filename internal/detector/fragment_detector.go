package detector

import (
	"errors"
	"strconv"
	"strings"
)

// FragmentDetector finds live processes whose invocation contains a
// resource-path fragment. This is how a stale-lock holder is identified:
// a session binds its profile path into the command line of the process
// it launches.
type FragmentDetector struct{ Fragment string }

func (d FragmentDetector) Alive() (bool, error) {
	pids, err := d.Pids()
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// Pids returns the PIDs of all matching processes.
func (d FragmentDetector) Pids() ([]int, error) {
	frag := strings.TrimSpace(d.Fragment)
	if frag == "" {
		return nil, errors.New("empty command fragment")
	}
	return matchingPids(frag)
}

func (d FragmentDetector) Describe() string { return "fragment:" + d.Fragment }

// parseWmicPids extracts PIDs from `wmic process get CommandLine,ProcessId
// /format:csv` output for rows whose command line contains frag. The
// command line may itself contain commas, but ProcessId is always the
// last CSV field.
func parseWmicPids(out []byte, frag string) []int {
	var pids []int
	for _, line := range strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, frag) {
			continue
		}
		idx := strings.LastIndex(line, ",")
		if idx < 0 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
