// Package launcher starts Photoshop inside its Wine prefix and stops it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/wine"
)

// ExeName is matched against the process table by Kill.
const ExeName = "photoshop.exe"

// ErrNotRunning is returned by Kill when nothing was found to stop.
var ErrNotRunning = errors.New("photoshop is not running")

// Launcher runs one installation's Photoshop.
type Launcher struct {
	fs     afero.Fs
	wine   *wine.Wine
	rec    *record.InstallationRecord
	exeRel string
	procs  ProcessTable
}

// New returns a Launcher. exeRel is Photoshop.exe relative to drive_c.
func New(fsys afero.Fs, w *wine.Wine, rec *record.InstallationRecord, exeRel string, procs ProcessTable) *Launcher {
	return &Launcher{fs: fsys, wine: w, rec: rec, exeRel: exeRel, procs: procs}
}

// ExePath is the Unix path of Photoshop.exe inside the prefix.
func (l *Launcher) ExePath() string {
	return filepath.Join(l.rec.PrefixPath(), "drive_c", filepath.FromSlash(l.exeRel))
}

// Launch starts Photoshop with files converted to Windows paths and waits
// for it to exit. Files that do not exist or cannot be converted are
// skipped with a warning. Wine output is appended to the launch log.
func (l *Launcher) Launch(ctx context.Context, files []string) error {
	logger := logging.Get("launcher")
	done := logging.LogOperationStart(logger, "launch")
	defer done()

	exe := l.ExePath()
	if _, err := l.fs.Stat(exe); err != nil {
		return fmt.Errorf("%w: %s not found", record.ErrNotInstalled, exe)
	}

	args := l.windowsArgs(ctx, files)

	if err := l.fs.MkdirAll(filepath.Dir(l.rec.LogPath()), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	logFile, err := l.fs.OpenFile(l.rec.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open launch log: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "=== %s launching %s %s\n", time.Now().Format(time.RFC3339), exe, strings.Join(args, " "))

	proc, err := l.wine.StartExe(ctx, logFile, exe, args...)
	if err != nil {
		return err
	}

	if err := l.writePID(proc.Pid()); err != nil {
		logger.Warn().Err(err).Msg("could not write PID file")
	}
	defer l.removePID()

	logger.Info().Int("pid", proc.Pid()).Int("files", len(args)).Msg("photoshop started")

	if err := proc.Wait(); err != nil {
		return fmt.Errorf("photoshop exited: %w", err)
	}
	return nil
}

func (l *Launcher) windowsArgs(ctx context.Context, files []string) []string {
	logger := logging.Get("launcher")

	var args []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			logger.Warn().Err(err).Str("file", f).Msg("skipping file")
			continue
		}
		if _, err := l.fs.Stat(abs); err != nil {
			logger.Warn().Err(err).Str("file", abs).Msg("skipping missing file")
			continue
		}
		win, err := l.wine.WindowsPath(ctx, abs)
		if err != nil {
			logger.Warn().Err(err).Str("file", abs).Msg("skipping unconvertible file")
			continue
		}
		args = append(args, win)
	}
	return args
}

// Running reports the PID from the PID file when that process is alive.
// A stale PID file is removed.
func (l *Launcher) Running() (int32, bool) {
	pid, err := l.readPID()
	if err != nil {
		return 0, false
	}
	if !l.procs.Exists(pid) {
		l.removePID()
		return 0, false
	}
	return pid, true
}

// Kill stops Photoshop: SIGTERM to the recorded PID and to every process
// that looks like Photoshop.exe, then wineserver -k for the prefix. It
// returns how many processes were signalled.
func (l *Launcher) Kill(ctx context.Context) (int, error) {
	logger := logging.Get("launcher")

	targets := map[int32]bool{}
	if pid, ok := l.Running(); ok {
		targets[pid] = true
	}

	found, err := l.procs.Find(ExeName)
	if err != nil {
		logger.Warn().Err(err).Msg("could not scan the process table")
	}
	for _, pid := range found {
		targets[pid] = true
	}

	var errs []error
	for pid := range targets {
		if err := l.procs.Terminate(pid); err != nil {
			errs = append(errs, fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err))
			continue
		}
		logger.Info().Int32("pid", pid).Msg("sent SIGTERM")
	}

	if err := l.wine.KillServer(ctx); err != nil {
		logger.Warn().Err(err).Msg("wineserver -k failed")
	}
	l.removePID()

	if len(targets) == 0 {
		return 0, ErrNotRunning
	}
	return len(targets) - len(errs), errors.Join(errs...)
}

func (l *Launcher) writePID(pid int) error {
	return afero.WriteFile(l.fs, l.rec.PIDPath(), []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

func (l *Launcher) readPID() (int32, error) {
	data, err := afero.ReadFile(l.fs, l.rec.PIDPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return int32(pid), nil
}

func (l *Launcher) removePID() {
	if err := l.fs.Remove(l.rec.PIDPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger := logging.Get("launcher")
		logger.Debug().Err(err).Msg("failed to remove PID file")
	}
}
