// Package shell edits the user's login shell profile so the command link
// directory is on PATH.
package shell

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Marker opens the block pswine appends to a profile.
const Marker = "# pswine"

// Journal records the appended block so it can be stripped again.
type Journal interface {
	AddedPathEntry(path string, created bool) error
}

// ProfilePath picks the profile file for the user's login shell.
func ProfilePath(home, shellPath string) (path string, fish bool) {
	switch filepath.Base(shellPath) {
	case "zsh":
		return filepath.Join(home, ".zprofile"), false
	case "bash":
		return filepath.Join(home, ".bash_profile"), false
	case "fish":
		return filepath.Join(home, ".config", "fish", "conf.d", "pswine.fish"), true
	default:
		return filepath.Join(home, ".profile"), false
	}
}

// EnsurePathEntry checks whether dir is on PATH and, if not, appends the
// export line to the appropriate shell config file. The append is
// recorded with journal first when journal is non-nil.
// Returns (added bool, configFile string, err error).
// added=false means no change was made.
func EnsurePathEntry(fsys afero.Fs, journal Journal, dir string) (added bool, configFile string, err error) {
	for _, entry := range filepath.SplitList(os.Getenv("PATH")) {
		if filepath.Clean(entry) == filepath.Clean(dir) {
			return false, "", nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return false, "", fmt.Errorf("cannot determine home directory: %w", err)
	}

	configPath, isFish := ProfilePath(home, os.Getenv("SHELL"))

	// Ensure the parent directory exists (needed for fish conf.d path).
	if err := fsys.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return false, "", fmt.Errorf("cannot create config directory %s: %w", filepath.Dir(configPath), err)
	}

	existing, readErr := afero.ReadFile(fsys, configPath)
	if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
		return false, "", fmt.Errorf("cannot read config file %s: %w", configPath, readErr)
	}
	if bytes.Contains(existing, []byte(Marker+"\n")) {
		// Already configured
		return false, configPath, nil
	}

	var block string
	if isFish {
		block = fmt.Sprintf("\n%s\nfish_add_path %s\n", Marker, dir)
	} else {
		block = fmt.Sprintf("\n%s\nexport PATH=%q:$PATH\n", Marker, dir)
	}

	if journal != nil {
		created := errors.Is(readErr, fs.ErrNotExist)
		if err := journal.AddedPathEntry(configPath, created); err != nil {
			return false, "", err
		}
	}

	f, err := fsys.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return false, "", fmt.Errorf("cannot open config file %s: %w", configPath, err)
	}
	defer f.Close()

	if _, err := f.WriteString(block); err != nil {
		return false, "", fmt.Errorf("cannot write to config file %s: %w", configPath, err)
	}

	return true, configPath, nil
}

// RemovePathEntry strips the block EnsurePathEntry appended, if present.
// It reports whether the file changed.
func RemovePathEntry(fsys afero.Fs, configPath string) (bool, error) {
	data, err := afero.ReadFile(fsys, configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot read config file %s: %w", configPath, err)
	}

	var kept []string
	changed := false
	lines := strings.SplitAfter(string(data), "\n")
	for i := 0; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\n") == Marker {
			changed = true
			// Drop the blank line EnsurePathEntry put before the block.
			if n := len(kept); n > 0 && kept[n-1] == "\n" {
				kept = kept[:n-1]
			}
			i++ // the export line
			continue
		}
		kept = append(kept, lines[i])
	}
	if !changed {
		return false, nil
	}

	cleaned := strings.Join(kept, "")
	if err := afero.WriteFile(fsys, configPath, []byte(cleaned), 0644); err != nil {
		return false, fmt.Errorf("cannot write config file %s: %w", configPath, err)
	}
	return true, nil
}
