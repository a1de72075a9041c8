package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/shell"
	"github.com/blackwell-systems/pswine/internal/store"
)

// Record appends an undo action to the journal.
func (m *Manager) Record(kind store.UndoKind, target, data string) error {
	a, err := m.store.InsertUndoAction(kind, target, data, m.clock.Now())
	if err != nil {
		return err
	}
	logger := logging.Get("checkpoint")
	logger.Debug().
		Int64("id", a.ID).
		Str("kind", string(kind)).
		Str("target", target).
		Msg("recorded undo action")
	return nil
}

// Created records that path was created and should be removed on rollback.
func (m *Manager) Created(path string) error {
	return m.Record(store.UndoRemovePath, path, "")
}

// Linked records that a symlink was created at path.
func (m *Manager) Linked(path string) error {
	return m.Record(store.UndoRemoveSymlink, path, "")
}

// Modifying saves the current content of path before the caller changes
// it. A file that does not exist yet is restored by removing it.
func (m *Manager) Modifying(path string) error {
	data, err := afero.ReadFile(m.fs, path)
	switch {
	case err == nil:
		return m.Record(store.UndoRestoreFile, path, string(data))
	case errors.Is(err, fs.ErrNotExist):
		return m.Record(store.UndoRestoreFile, path, store.AbsentMarker)
	default:
		return fmt.Errorf("failed to save %s for rollback: %w", path, err)
	}
}

// AddedPathEntry records that the PATH block is being appended to the
// shell profile at path. Rollback strips only that block, so later edits
// by the user survive. created means the profile did not exist.
func (m *Manager) AddedPathEntry(path string, created bool) error {
	data := ""
	if created {
		data = store.CreatedMarker
	}
	return m.Record(store.UndoRemoveProfileEntry, path, data)
}

// Compensate records a command that reverses a step.
func (m *Manager) Compensate(target string, argv ...string) error {
	if len(argv) == 0 {
		return errors.New("compensating command is empty")
	}
	data, err := json.Marshal(argv)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	return m.Record(store.UndoRunCommand, target, string(data))
}

// Rollback undoes every pending action recorded after the checkpoint name,
// newest first. Failures do not stop the replay; they are joined into the
// returned error and the failed actions stay pending.
func (m *Manager) Rollback(ctx context.Context, name string) (*Checkpoint, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	row, err := m.store.GetCheckpoint(clean)
	if err != nil {
		return nil, err
	}

	cp, err := m.Load(clean)
	if err != nil {
		// The journal is authoritative; the file is informational.
		logger := logging.Get("checkpoint")
		logger.Warn().Err(err).Str("name", clean).Msg("checkpoint file unreadable")
		cp = &Checkpoint{Name: row.Name, Timestamp: row.CreatedAt}
	}

	return cp, m.replay(ctx, row.ActionMark)
}

// RollbackAll undoes every pending action in the journal.
func (m *Manager) RollbackAll(ctx context.Context) error {
	return m.replay(ctx, 0)
}

func (m *Manager) replay(ctx context.Context, mark int64) error {
	logger := logging.Get("checkpoint")

	actions, err := m.store.PendingActionsAfter(mark)
	if err != nil {
		return err
	}

	var errs []error
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := m.undo(ctx, a); err != nil {
			logger.Warn().Err(err).Int64("id", a.ID).Str("kind", string(a.Kind)).Msg("undo failed")
			errs = append(errs, fmt.Errorf("undo %s %s: %w", a.Kind, a.Target, err))
			continue
		}

		if err := m.store.MarkUndone(a.ID, m.clock.Now()); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info().Int64("id", a.ID).Str("kind", string(a.Kind)).Str("target", a.Target).Msg("undone")
	}

	return errors.Join(errs...)
}

func (m *Manager) undo(ctx context.Context, a *store.UndoAction) error {
	switch a.Kind {
	case store.UndoRemovePath:
		target, err := m.guard.Check(a.Target)
		if err != nil {
			return err
		}
		return m.fs.RemoveAll(target)

	case store.UndoRemoveSymlink:
		target, err := m.guard.CheckLink(a.Target)
		if err != nil {
			return err
		}
		info, err := lstat(m.fs, target)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("%s is no longer a symlink", target)
		}
		return m.fs.Remove(target)

	case store.UndoRestoreFile:
		target, err := m.guard.Check(a.Target)
		if err != nil {
			return err
		}
		if a.Data == store.AbsentMarker {
			if err := m.fs.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		}
		return afero.WriteFile(m.fs, target, []byte(a.Data), 0644)

	case store.UndoRemoveProfileEntry:
		target, err := m.guard.Check(a.Target)
		if err != nil {
			return err
		}
		if _, err := shell.RemovePathEntry(m.fs, target); err != nil {
			return err
		}
		if a.Data != store.CreatedMarker {
			return nil
		}
		left, err := afero.ReadFile(m.fs, target)
		if err != nil || len(bytes.TrimSpace(left)) > 0 {
			return nil
		}
		return m.fs.Remove(target)

	case store.UndoRunCommand:
		var argv []string
		if err := json.Unmarshal([]byte(a.Data), &argv); err != nil {
			return fmt.Errorf("bad command payload: %w", err)
		}
		if len(argv) == 0 {
			return errors.New("empty command")
		}
		_, err := m.runner.Run(ctx, command.Command{Name: argv[0], Args: argv[1:]})
		return err
	}

	return fmt.Errorf("unknown undo kind %q", a.Kind)
}

// lstat uses Lstat when the filesystem supports it.
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}
