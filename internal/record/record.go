// Package record persists the installation record: the install path, the
// cache path and an optional Wine variant tag, one per line in a small text
// file in the user's home directory.
package record

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/paths"
)

// DefaultFileName is the record file created in $HOME.
const DefaultFileName = ".psdata.txt"

// ErrNotInstalled is returned by Load when no record file exists.
var ErrNotInstalled = errors.New("photoshop is not installed (no installation record)")

// InstallationRecord is the state shared by every pswine command.
type InstallationRecord struct {
	InstallPath string
	CachePath   string
	WineVariant string
}

// Validate checks both paths with paths.ValidatePath.
func (r *InstallationRecord) Validate() error {
	if err := paths.ValidatePath(r.InstallPath); err != nil {
		return fmt.Errorf("install path: %w", err)
	}
	if err := paths.ValidatePath(r.CachePath); err != nil {
		return fmt.Errorf("cache path: %w", err)
	}
	if strings.ContainsAny(r.WineVariant, "\n\r") {
		return fmt.Errorf("wine variant: %w: contains a line break", paths.ErrUnsafePath)
	}
	return nil
}

// PrefixPath is the Wine prefix inside the install directory.
func (r *InstallationRecord) PrefixPath() string {
	return filepath.Join(r.InstallPath, "prefix")
}

// ResourcesPath holds icons and other files copied during setup.
func (r *InstallationRecord) ResourcesPath() string {
	return filepath.Join(r.InstallPath, "resources")
}

// LogPath is where the launcher writes Wine's output.
func (r *InstallationRecord) LogPath() string {
	return filepath.Join(r.CachePath, "pswine-launch.log")
}

// PIDPath records the PID of the running Photoshop process.
func (r *InstallationRecord) PIDPath() string {
	return filepath.Join(r.CachePath, "photoshop.pid")
}

// Store reads and writes the record file.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a Store for the record file at path.
func NewStore(fsys afero.Fs, path string) *Store {
	return &Store{fs: fsys, path: path}
}

// DefaultPath returns $HOME/.psdata.txt.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Path returns the record file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a record file is present.
func (s *Store) Exists() bool {
	ok, err := afero.Exists(s.fs, s.path)
	return err == nil && ok
}

// Load reads the record. Files written before the variant tag existed have
// only two lines and load with an empty WineVariant.
func (s *Store) Load() (*InstallationRecord, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotInstalled
		}
		return nil, fmt.Errorf("failed to read installation record %s: %w", s.path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() && len(lines) < 3 {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse installation record %s: %w", s.path, err)
	}

	rec := &InstallationRecord{}
	if len(lines) > 0 {
		rec.InstallPath = lines[0]
	}
	if len(lines) > 1 {
		rec.CachePath = lines[1]
	}
	if len(lines) > 2 {
		rec.WineVariant = lines[2]
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid installation record %s: %w", s.path, err)
	}

	return rec, nil
}

// Save validates rec and writes it, replacing any previous record.
func (s *Store) Save(rec *InstallationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, rec.InstallPath)
	fmt.Fprintln(&buf, rec.CachePath)
	if rec.WineVariant != "" {
		fmt.Fprintln(&buf, rec.WineVariant)
	}

	// Write to a sibling temp file and rename so a crash never leaves a
	// half-written record behind.
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write installation record: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace installation record: %w", err)
	}

	return nil
}

// Remove deletes the record file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove installation record: %w", err)
	}
	return nil
}
