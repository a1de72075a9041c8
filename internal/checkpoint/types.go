// Package checkpoint names milestones of an install and rolls the system
// back to them by replaying the compensating-action journal.
package checkpoint

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/paths"
	"github.com/blackwell-systems/pswine/internal/store"
)

// FileExt is the suffix of checkpoint files.
const FileExt = ".checkpoint"

// ErrInvalidName is returned for names that are empty after sanitising or
// would escape the checkpoint directory.
var ErrInvalidName = errors.New("invalid checkpoint name")

// Checkpoint is the state captured in a checkpoint file.
type Checkpoint struct {
	Name             string
	Timestamp        time.Time
	WinePrefixExists bool
	ScrPath          string
	CachePath        string
}

// Summary is a checkpoint row plus the number of actions a rollback to it
// would replay.
type Summary struct {
	Name      string
	CreatedAt time.Time
	FilePath  string
	Pending   int
}

// Manager creates checkpoints, records undo actions and rolls back.
type Manager struct {
	fs     afero.Fs
	store  *store.Store
	dir    string
	guard  *paths.Guard
	runner command.Runner
	clock  clockwork.Clock
	runID  string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRunID sets the identifier stamped on checkpoints created by this
// process.
func WithRunID(id string) Option {
	return func(m *Manager) { m.runID = id }
}
