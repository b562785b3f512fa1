//go:build windows

package detector

import "os/exec"

// matchingPids lists processes whose full command line contains frag.
// The full process table is fetched and filtered here rather than via a
// WQL "like" clause, so frag never has to be escaped into a query.
func matchingPids(frag string) ([]int, error) {
	out, err := exec.Command("wmic", "process", "get", "CommandLine,ProcessId", "/format:csv").Output()
	if err != nil {
		return nil, err
	}
	return parseWmicPids(out, frag), nil
}
