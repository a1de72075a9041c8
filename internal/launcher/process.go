package launcher

import (
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessTable is the slice of the OS process table the launcher needs.
type ProcessTable interface {
	Exists(pid int32) bool
	// Find returns the pids whose name or command line contains match,
	// compared case-insensitively.
	Find(match string) ([]int32, error)
	Terminate(pid int32) error
}

// SystemProcesses reads the real process table.
type SystemProcesses struct{}

// Exists implements ProcessTable.
func (SystemProcesses) Exists(pid int32) bool {
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

// Find implements ProcessTable.
func (SystemProcesses) Find(match string) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	match = strings.ToLower(match)
	var pids []int32
	for _, p := range procs {
		name, err := p.Name()
		if err == nil && strings.Contains(strings.ToLower(name), match) {
			pids = append(pids, p.Pid)
			continue
		}
		cmdline, err := p.Cmdline()
		if err == nil && strings.Contains(strings.ToLower(cmdline), match) {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

// Terminate implements ProcessTable with SIGTERM.
func (SystemProcesses) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}
