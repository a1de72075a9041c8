// Package shim manages the "photoshop" command link.
//
// The link points at the pswine binary itself. When pswine starts under
// the name "photoshop" it dispatches straight to the launcher, the way a
// multi-call binary picks its behavior from filepath.Base(os.Args[0]).
package shim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/paths"
)

// LinkName is the command name users type.
const LinkName = "photoshop"

// ErrNotALink is returned when a regular file already occupies the link path.
var ErrNotALink = errors.New("existing file is not a symlink")

// Journal records how to undo link creation. checkpoint.Manager implements it.
type Journal interface {
	Linked(path string) error
	Compensate(target string, argv ...string) error
}

// Linker creates and removes the command link.
type Linker struct {
	guard   *paths.Guard
	runner  command.Runner
	journal Journal
}

// New returns a Linker. journal may be nil.
func New(guard *paths.Guard, runner command.Runner, journal Journal) *Linker {
	return &Linker{guard: guard, runner: runner, journal: journal}
}

// LinkPath returns the link location inside binDir.
func LinkPath(binDir string) string {
	return filepath.Join(binDir, LinkName)
}

// Install points <binDir>/photoshop at target. When binDir is not
// writable it retries with sudo ln -sf. The returned bool reports whether
// sudo was used.
func (l *Linker) Install(ctx context.Context, binDir, target string) (bool, error) {
	logger := logging.Get("shim")
	linkPath := LinkPath(binDir)

	// Skip if already correctly linked.
	if existing, err := os.Readlink(linkPath); err == nil && existing == target {
		logger.Debug().Str("link", linkPath).Msg("link already up to date")
		return false, nil
	}

	checked, err := l.guard.CheckLink(linkPath)
	if err != nil {
		return false, err
	}

	if info, err := os.Lstat(checked); err == nil && info.Mode()&os.ModeSymlink == 0 {
		return false, fmt.Errorf("%w: %s", ErrNotALink, checked)
	}

	err = l.link(checked, target)
	if err == nil {
		logger.Info().Str("link", checked).Str("target", target).Msg("command link created")
		if l.journal != nil {
			return false, l.journal.Linked(checked)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return false, err
	}

	logger.Warn().Str("dir", binDir).Msg("bin directory not writable, using sudo")
	c := command.Command{
		Name:   "sudo",
		Args:   []string{"ln", "-sf", target, checked},
		Stdout: os.Stderr,
	}
	if _, err := l.runner.Run(ctx, c); err != nil {
		return true, fmt.Errorf("failed to create %s with sudo: %w", checked, err)
	}
	if l.journal != nil {
		return true, l.journal.Compensate(checked, "sudo", "rm", "-f", checked)
	}
	return true, nil
}

// link replaces any stale symlink at path with one to target.
func (l *Linker) link(path, target string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(target, path)
}

// Remove deletes the link if it is a symlink. A missing link is not an
// error. Permission failures fall back to sudo rm -f.
func (l *Linker) Remove(ctx context.Context, binDir string) error {
	linkPath, err := l.guard.CheckLink(LinkPath(binDir))
	if err != nil {
		return err
	}

	info, err := os.Lstat(linkPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%w: %s", ErrNotALink, linkPath)
	}

	err = os.Remove(linkPath)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return err
	}

	if _, err := l.runner.Run(ctx, command.Command{Name: "sudo", Args: []string{"rm", "-f", linkPath}, Stdout: os.Stderr}); err != nil {
		return fmt.Errorf("failed to remove %s with sudo: %w", linkPath, err)
	}
	return nil
}

// Installed reports whether <binDir>/photoshop is a symlink to target.
func Installed(binDir, target string) bool {
	existing, err := os.Readlink(LinkPath(binDir))
	return err == nil && existing == target
}

// OnPath reports whether dir is an entry of the PATH list.
func OnPath(dir, pathEnv string) bool {
	for _, entry := range filepath.SplitList(pathEnv) {
		if filepath.Clean(entry) == filepath.Clean(dir) {
			return true
		}
	}
	return false
}
