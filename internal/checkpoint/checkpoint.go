package checkpoint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/paths"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/store"
)

// New creates a Manager writing checkpoint files to dir.
func New(fsys afero.Fs, st *store.Store, dir string, guard *paths.Guard, runner command.Runner, opts ...Option) *Manager {
	m := &Manager{
		fs:     fsys,
		store:  st,
		dir:    dir,
		guard:  guard,
		runner: runner,
		clock:  clockwork.NewRealClock(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string {
	return m.dir
}

// RunID identifies this process in the journal.
func (m *Manager) RunID() string {
	return m.runID
}

// CleanName sanitises a user-supplied checkpoint name.
func CleanName(name string) (string, error) {
	clean := strings.TrimSpace(paths.SanitizeInput(name))
	if clean == "" || clean == "." || clean == ".." || strings.ContainsAny(clean, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// Create snapshots the installation state under name. rec may be nil
// before the install paths are known. An existing checkpoint of the same
// name is replaced and moves to the current journal position.
func (m *Manager) Create(name string, rec *record.InstallationRecord) (*Checkpoint, error) {
	logger := logging.Get("checkpoint")

	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	if err := m.fs.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	cp := &Checkpoint{
		Name:      clean,
		Timestamp: m.clock.Now().UTC().Truncate(time.Second),
	}
	if rec != nil {
		cp.ScrPath = rec.InstallPath
		cp.CachePath = rec.CachePath
		exists, _ := afero.DirExists(m.fs, rec.PrefixPath())
		cp.WinePrefixExists = exists
	}

	path := m.filePath(clean)
	tmp := path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, encode(cp), 0644); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := m.fs.Rename(tmp, path); err != nil {
		_ = m.fs.Remove(tmp)
		return nil, fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	if err := m.store.DeleteCheckpoint(clean); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := m.store.InsertCheckpoint(clean, m.runID, path, cp.Timestamp); err != nil {
		// Try to clean up the file if the DB insert fails
		_ = m.fs.Remove(path)
		return nil, fmt.Errorf("failed to insert checkpoint into journal: %w", err)
	}

	logger.Info().Str("name", clean).Str("file", path).Msg("checkpoint created")
	return cp, nil
}

// Load reads the checkpoint file for name.
func (m *Manager) Load(name string) (*Checkpoint, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	path := m.filePath(clean)

	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checkpoint %s: %w", clean, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	cp, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}
	return cp, nil
}

// List returns every checkpoint, newest first.
func (m *Manager) List() ([]*Summary, error) {
	rows, err := m.store.ListCheckpoints()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := make([]*Summary, 0, len(rows))
	for _, row := range rows {
		pending, err := m.store.CountPendingAfter(row.ActionMark)
		if err != nil {
			return nil, err
		}
		out = append(out, &Summary{
			Name:      row.Name,
			CreatedAt: row.CreatedAt,
			FilePath:  row.FilePath,
			Pending:   pending,
		})
	}
	return out, nil
}

// Latest returns the name of the newest checkpoint.
func (m *Manager) Latest() (string, error) {
	row, err := m.store.LatestCheckpoint()
	if err != nil {
		return "", err
	}
	return row.Name, nil
}

// Prune deletes checkpoints created at or before now minus olderThan, so
// Prune(0) deletes them all. Their undo actions stay
// in the journal and are still reachable from earlier checkpoints.
func (m *Manager) Prune(olderThan time.Duration) (int, error) {
	rows, err := m.store.ListCheckpoints()
	if err != nil {
		return 0, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	cutoff := m.clock.Now().Add(-olderThan)
	deleted := 0
	for _, row := range rows {
		if row.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.fs.Remove(row.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("failed to delete checkpoint file %s: %w", row.FilePath, err)
		}
		if err := m.store.DeleteCheckpoint(row.Name); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (m *Manager) filePath(name string) string {
	return filepath.Join(m.dir, name+FileExt)
}

func encode(cp *Checkpoint) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "name=%s\n", cp.Name)
	fmt.Fprintf(&buf, "timestamp=%s\n", cp.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&buf, "wine_prefix_exists=%t\n", cp.WinePrefixExists)
	fmt.Fprintf(&buf, "scr_path=%s\n", cp.ScrPath)
	fmt.Fprintf(&buf, "cache_path=%s\n", cp.CachePath)
	return buf.Bytes()
}

// decode parses key=value lines. Unknown keys and comment lines are
// skipped.
func decode(data []byte) (*Checkpoint, error) {
	cp := &Checkpoint{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		switch key {
		case "name":
			cp.Name = value
		case "timestamp":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("bad timestamp: %w", err)
			}
			cp.Timestamp = t
		case "wine_prefix_exists":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("bad wine_prefix_exists: %w", err)
			}
			cp.WinePrefixExists = b
		case "scr_path":
			cp.ScrPath = value
		case "cache_path":
			cp.CachePath = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cp.Name == "" {
		return nil, errors.New("missing name")
	}
	return cp, nil
}
