package store

import "time"

// CheckpointRow is a named milestone in the journal. Actions recorded after
// it are what a rollback to it undoes.
type CheckpointRow struct {
	ID        int64
	Name      string
	RunID     string
	CreatedAt time.Time
	FilePath  string

	// ActionMark is the highest undo action id at creation time.
	ActionMark int64
}

// UndoKind names a compensating action.
type UndoKind string

const (
	// UndoRemovePath removes a file or directory tree that a step created.
	UndoRemovePath UndoKind = "remove_path"

	// UndoRemoveSymlink removes a symlink that a step created.
	UndoRemoveSymlink UndoKind = "remove_symlink"

	// UndoRestoreFile writes Data back to Target. Data equal to
	// AbsentMarker means the file did not exist and is removed instead.
	UndoRestoreFile UndoKind = "restore_file"

	// UndoRunCommand runs the JSON-encoded argv held in Data.
	UndoRunCommand UndoKind = "run_command"

	// UndoRemoveProfileEntry strips the pswine PATH block from a shell
	// profile and leaves the rest of the file alone. Data equal to
	// CreatedMarker means the profile did not exist before and is removed
	// when nothing else is left in it.
	UndoRemoveProfileEntry UndoKind = "remove_profile_entry"
)

// AbsentMarker is the restore_file payload for a file that did not exist.
const AbsentMarker = "\x00absent"

// CreatedMarker is the remove_profile_entry payload for a profile that
// pswine created.
const CreatedMarker = "created"

// UndoAction records how to reverse one mutating step.
type UndoAction struct {
	ID           int64
	CheckpointID int64 // 0 when recorded before any checkpoint
	Kind         UndoKind
	Target       string
	Data         string
	CreatedAt    time.Time
	UndoneAt     *time.Time
}

// Valid reports whether k is a known kind.
func (k UndoKind) Valid() bool {
	switch k {
	case UndoRemovePath, UndoRemoveSymlink, UndoRestoreFile, UndoRunCommand, UndoRemoveProfileEntry:
		return true
	}
	return false
}
