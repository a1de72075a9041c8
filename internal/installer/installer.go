// Package installer drives a complete Photoshop install and uninstall.
//
// Every mutating step is journaled through the checkpoint manager, so a
// failed setup can be rolled back and uninstall can replay the journal.
package installer

import (
	"io"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/checkpoint"
	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/config"
	"github.com/blackwell-systems/pswine/internal/paths"
	"github.com/blackwell-systems/pswine/internal/prompt"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/retry"
	"github.com/blackwell-systems/pswine/internal/wait"
)

// Checkpoints created by Setup, in order.
const (
	CheckpointStart      = "setup-start"
	CheckpointPrefix     = "prefix-created"
	CheckpointComponents = "components-installed"
	CheckpointPhotoshop  = "photoshop-installed"
	CheckpointComplete   = "setup-complete"
)

// Deps are the collaborators an Installer works through.
type Deps struct {
	Config      *config.Config
	FS          afero.Fs
	Runner      command.Runner
	Records     *record.Store
	Checkpoints *checkpoint.Manager
	Guard       *paths.Guard
	Confirm     *prompt.Confirmer
	Out         io.Writer

	// DataHome is the XDG data home the desktop files go under.
	DataHome string
}

// Installer runs setup and uninstall.
type Installer struct {
	Deps
}

// New returns an Installer.
func New(d Deps) *Installer {
	return &Installer{Deps: d}
}

func (in *Installer) retryPolicy() retry.Policy {
	c := in.Config
	return retry.Policy{
		Attempts:    c.Retry.Attempts,
		Delay:       c.RetryDelay(),
		MaxDelay:    c.RetryMaxDelay(),
		Exponential: c.Retry.Exponential,
	}
}

func (in *Installer) waitOptions() wait.Options {
	return wait.Options{
		Interval: in.Config.WaitInterval(),
		Timeout:  in.Config.WaitTimeout(),
	}
}
