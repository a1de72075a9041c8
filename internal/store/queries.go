package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout keeps sub-second precision so rows created in the same
// second still sort.
const timeLayout = time.RFC3339Nano

// InsertCheckpoint inserts a checkpoint row. The action mark is taken from
// the journal inside the same statement.
func (s *Store) InsertCheckpoint(name, runID, filePath string, at time.Time) (*CheckpointRow, error) {
	query := `
		INSERT INTO checkpoints (name, run_id, created_at, file_path, action_mark)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(id), 0) FROM undo_actions))
	`

	result, err := s.db.Exec(query, name, runID, at.UTC().Format(timeLayout), filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to insert checkpoint %s: %w", name, classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint ID: %w", err)
	}

	return s.getCheckpointByID(id)
}

// GetCheckpoint retrieves a checkpoint by name.
func (s *Store) GetCheckpoint(name string) (*CheckpointRow, error) {
	query := `
		SELECT id, name, run_id, created_at, file_path, action_mark
		FROM checkpoints
		WHERE name = ?
	`
	cp, err := scanCheckpoint(s.db.QueryRow(query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint %s: %w", name, classify(err))
	}
	return cp, nil
}

func (s *Store) getCheckpointByID(id int64) (*CheckpointRow, error) {
	query := `
		SELECT id, name, run_id, created_at, file_path, action_mark
		FROM checkpoints
		WHERE id = ?
	`
	cp, err := scanCheckpoint(s.db.QueryRow(query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint %d: %w", id, classify(err))
	}
	return cp, nil
}

// LatestCheckpoint returns the most recently created checkpoint.
func (s *Store) LatestCheckpoint() (*CheckpointRow, error) {
	query := `
		SELECT id, name, run_id, created_at, file_path, action_mark
		FROM checkpoints
		ORDER BY id DESC
		LIMIT 1
	`
	cp, err := scanCheckpoint(s.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no checkpoints: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest checkpoint: %w", classify(err))
	}
	return cp, nil
}

// ListCheckpoints returns all checkpoints, newest first.
func (s *Store) ListCheckpoints() ([]*CheckpointRow, error) {
	query := `
		SELECT id, name, run_id, created_at, file_path, action_mark
		FROM checkpoints
		ORDER BY id DESC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", classify(err))
	}
	defer rows.Close()

	var checkpoints []*CheckpointRow
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// DeleteCheckpoint removes a checkpoint row. Its actions stay in the
// journal with a NULL checkpoint_id.
func (s *Store) DeleteCheckpoint(name string) error {
	result, err := s.db.Exec("DELETE FROM checkpoints WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", name, classify(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("checkpoint %s: %w", name, ErrNotFound)
	}
	return nil
}

// InsertUndoAction appends a compensating action to the journal and binds
// it to the latest checkpoint, if any.
func (s *Store) InsertUndoAction(kind UndoKind, target, data string, at time.Time) (*UndoAction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown undo kind %q", kind)
	}

	query := `
		INSERT INTO undo_actions (checkpoint_id, kind, target, data, created_at)
		VALUES ((SELECT MAX(id) FROM checkpoints), ?, ?, ?, ?)
	`
	result, err := s.db.Exec(query, string(kind), target, data, at.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to record %s %s: %w", kind, target, classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get undo action ID: %w", err)
	}

	return s.getUndoAction(id)
}

func (s *Store) getUndoAction(id int64) (*UndoAction, error) {
	query := `
		SELECT id, checkpoint_id, kind, target, data, created_at, undone_at
		FROM undo_actions
		WHERE id = ?
	`
	a, err := scanUndoAction(s.db.QueryRow(query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get undo action %d: %w", id, classify(err))
	}
	return a, nil
}

// PendingActionsAfter returns the actions with an id above mark that have
// not been undone, newest first. That is the order a rollback replays them.
func (s *Store) PendingActionsAfter(mark int64) ([]*UndoAction, error) {
	query := `
		SELECT id, checkpoint_id, kind, target, data, created_at, undone_at
		FROM undo_actions
		WHERE id > ? AND undone_at IS NULL
		ORDER BY id DESC
	`
	rows, err := s.db.Query(query, mark)
	if err != nil {
		return nil, fmt.Errorf("failed to query undo actions: %w", classify(err))
	}
	defer rows.Close()

	var actions []*UndoAction
	for rows.Next() {
		a, err := scanUndoAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan undo action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CountPendingAfter counts what PendingActionsAfter would return.
func (s *Store) CountPendingAfter(mark int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM undo_actions WHERE id > ? AND undone_at IS NULL", mark,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count undo actions: %w", classify(err))
	}
	return n, nil
}

// MarkUndone stamps an action as replayed so it is never replayed twice.
func (s *Store) MarkUndone(id int64, at time.Time) error {
	_, err := s.db.Exec(
		"UPDATE undo_actions SET undone_at = ? WHERE id = ?",
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark undo action %d: %w", id, classify(err))
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*CheckpointRow, error) {
	var cp CheckpointRow
	var createdAt string
	if err := row.Scan(&cp.ID, &cp.Name, &cp.RunID, &createdAt, &cp.FilePath, &cp.ActionMark); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	cp.CreatedAt = t
	return &cp, nil
}

func scanUndoAction(row rowScanner) (*UndoAction, error) {
	var a UndoAction
	var checkpointID sql.NullInt64
	var kind, createdAt string
	var undoneAt sql.NullString
	if err := row.Scan(&a.ID, &checkpointID, &kind, &a.Target, &a.Data, &createdAt, &undoneAt); err != nil {
		return nil, err
	}
	a.Kind = UndoKind(kind)
	if checkpointID.Valid {
		a.CheckpointID = checkpointID.Int64
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	a.CreatedAt = t

	if undoneAt.Valid {
		u, err := time.Parse(timeLayout, undoneAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse undone_at: %w", err)
		}
		a.UndoneAt = &u
	}
	return &a, nil
}
