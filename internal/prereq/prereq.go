// Package prereq checks for the external programs and disk space an
// install needs.
package prereq

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/blackwell-systems/pswine/internal/command"
)

// ErrMissing is wrapped when a required program is not installed.
var ErrMissing = errors.New("missing prerequisite")

// MinFreeBytes is the free space an install needs at the install path.
const MinFreeBytes uint64 = 5 << 30

// Program is one external tool pswine calls.
type Program struct {
	Name     string
	Required bool
	Hint     string
}

// Result is the outcome of looking for one Program.
type Result struct {
	Program
	Path  string
	Found bool
}

// Report collects the results of Check.
type Report struct {
	Results []Result
}

// Programs lists what setup, launch and the desktop integration call.
// wineBin resolves Wine program names for the selected variant.
func Programs(wineBin func(string) string, winetricks string) []Program {
	return []Program{
		{Name: wineBin("wine"), Required: true, Hint: "install wine from your distribution"},
		{Name: wineBin("wineserver"), Required: true, Hint: "ships with wine"},
		{Name: winetricks, Required: true, Hint: "https://github.com/Winetricks/winetricks"},
		{Name: "notify-send", Hint: "libnotify; desktop notifications are skipped without it"},
		{Name: "update-desktop-database", Hint: "desktop-file-utils"},
		{Name: "update-mime-database", Hint: "shared-mime-info"},
		{Name: "gtk-update-icon-cache", Hint: "gtk3"},
	}
}

// Check looks up every program with runner.
func Check(runner command.Runner, programs []Program) *Report {
	report := &Report{}
	for _, p := range programs {
		r := Result{Program: p}
		if path, err := runner.LookPath(p.Name); err == nil {
			r.Path = path
			r.Found = true
		}
		report.Results = append(report.Results, r)
	}
	return report
}

// Missing returns the required programs that were not found.
func (r *Report) Missing() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Required && !res.Found {
			out = append(out, res)
		}
	}
	return out
}

// Optional returns the optional programs that were not found.
func (r *Report) Optional() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Required && !res.Found {
			out = append(out, res)
		}
	}
	return out
}

// Err wraps ErrMissing with the names of missing required programs.
func (r *Report) Err() error {
	missing := r.Missing()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = m.Name
	}
	return fmt.Errorf("%w: %s", ErrMissing, strings.Join(names, ", "))
}

// FreeSpace reports the bytes available on the filesystem that would hold
// path. Missing trailing components are walked up until one exists.
func FreeSpace(path string) (uint64, error) {
	dir := path
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", dir, err)
	}
	return usage.Free, nil
}
