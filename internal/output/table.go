// Package output provides terminal output utilities for pswine.
//
// This package includes:
//   - Table rendering for checkpoints, installation status and doctor reports
//   - Progress bars for the setup steps
//   - Spinners for long waits on Wine
//
// Tables use plain ASCII layout and ANSI color codes, disabled when stdout
// is not a terminal or NO_COLOR is set.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/pswine/internal/checkpoint"
	"github.com/blackwell-systems/pswine/internal/prereq"
)

// ANSI color codes for status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderCheckpointTable renders checkpoints in the order given (List
// returns newest first).
func RenderCheckpointTable(checkpoints []*checkpoint.Summary) string {
	if len(checkpoints) == 0 {
		return "No checkpoints found.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-17s %s\n", "Name", "Created", "Undo actions"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, cp := range checkpoints {
		sb.WriteString(fmt.Sprintf("%-24s %-17s %d\n",
			truncate(cp.Name, 24),
			formatRelativeTime(cp.CreatedAt),
			cp.Pending))
	}

	return sb.String()
}

// Status is what `pswine status` shows.
type Status struct {
	Installed      bool
	RecordFile     string
	InstallPath    string
	CachePath      string
	WineVariant    string
	WineVersion    string
	PrefixExists   bool
	InstallSize    int64
	CacheSize      int64
	Running        bool
	PID            int
	DesktopEntry   bool
	CommandLink    string
	Checkpoints    int
	LastCheckpoint time.Time
}

// RenderStatus renders a key/value summary of the installation.
func RenderStatus(s Status) string {
	var sb strings.Builder

	row := func(key, value string) {
		sb.WriteString(fmt.Sprintf("%-16s %s\n", key+":", value))
	}

	if !s.Installed {
		row("Installed", colorize(colorYellow, "no"))
		row("Record file", s.RecordFile+" (missing)")
		return sb.String()
	}

	row("Installed", colorize(colorGreen, "yes"))
	row("Record file", s.RecordFile)
	row("Install path", fmt.Sprintf("%s (%s)", s.InstallPath, FormatSize(s.InstallSize)))
	row("Cache path", fmt.Sprintf("%s (%s)", s.CachePath, FormatSize(s.CacheSize)))

	variant := s.WineVariant
	if variant == "" {
		variant = "default"
	}
	if s.WineVersion != "" {
		variant += " (" + s.WineVersion + ")"
	}
	row("Wine", variant)
	row("Wine prefix", yesNo(s.PrefixExists))

	if s.Running {
		row("Photoshop", colorize(colorGreen, fmt.Sprintf("running (pid %d)", s.PID)))
	} else {
		row("Photoshop", colorize(colorGray, "not running"))
	}

	row("Desktop entry", yesNo(s.DesktopEntry))
	if s.CommandLink != "" {
		row("Command", s.CommandLink)
	} else {
		row("Command", colorize(colorYellow, "not linked"))
	}

	if s.Checkpoints > 0 {
		row("Checkpoints", fmt.Sprintf("%d (latest %s)", s.Checkpoints, formatRelativeTime(s.LastCheckpoint)))
	} else {
		row("Checkpoints", "0")
	}

	return sb.String()
}

// RenderDoctor renders a prerequisite report.
func RenderDoctor(report *prereq.Report) string {
	var sb strings.Builder

	for _, r := range report.Results {
		var mark string
		switch {
		case r.Found:
			mark = colorize(colorGreen, "✓")
		case r.Required:
			mark = colorize(colorRed, "✗")
		default:
			mark = colorize(colorYellow, "⚠")
		}

		line := fmt.Sprintf("%s %-28s", mark, truncate(r.Name, 28))
		if r.Found {
			line += " " + r.Path
		} else {
			line += " " + colorize(colorGray, r.Hint)
		}
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")
	}

	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FormatSize converts bytes to a human-readable IEC size.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
