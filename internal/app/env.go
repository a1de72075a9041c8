package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/checkpoint"
	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/config"
	"github.com/blackwell-systems/pswine/internal/launcher"
	"github.com/blackwell-systems/pswine/internal/paths"
	"github.com/blackwell-systems/pswine/internal/prompt"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/store"
	"github.com/blackwell-systems/pswine/internal/wine"
)

// JournalFile is the SQLite journal inside the data directory.
const JournalFile = "journal.db"

// Replaced in tests.
var (
	osFs         = afero.NewOsFs
	newRunner    = func() command.Runner { return command.ExecRunner{} }
	newProcesses = func() launcher.ProcessTable { return launcher.SystemProcesses{} }
	stdin        io.Reader = os.Stdin
	dataHome     = func() string { return xdg.DataHome }
)

// environment is what every command works with: the loaded config and
// the collaborators built from it.
type environment struct {
	cfg     *config.Config
	fs      afero.Fs
	runner  command.Runner
	records *record.Store
	guard   *paths.Guard

	st *store.Store
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	fsys := osFs()

	cfg, err := config.Load(fsys, config.Path(configFile))
	if err != nil {
		return nil, err
	}

	recordPath := cfg.Paths.RecordFile
	if dataFile != "" {
		recordPath = paths.ExpandHome(dataFile)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	return &environment{
		cfg:     cfg,
		fs:      fsys,
		runner:  newRunner(),
		records: record.NewStore(fsys, recordPath),
		guard:   paths.NewGuard(append([]string{home}, cfg.Paths.AllowedRoots...)...),
	}, nil
}

// journalDir returns the directory holding journal.db and the checkpoint
// files.
func journalDir() string {
	if dataDir != "" {
		return paths.ExpandHome(dataDir)
	}
	return config.DataDir()
}

// checkpoints opens the journal. Close releases it.
func (e *environment) checkpoints() (*checkpoint.Manager, error) {
	dir := journalDir()
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, JournalFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	e.st = st

	return checkpoint.New(e.fs, st, filepath.Join(dir, "checkpoints"), e.guard, e.runner), nil
}

func (e *environment) Close() {
	if e.st != nil {
		e.st.Close()
		e.st = nil
	}
}

func (e *environment) confirmer(cmd *cobra.Command, assumeYes bool) *prompt.Confirmer {
	return prompt.New(stdin, cmd.OutOrStdout(), assumeYes)
}

// installed loads the record and binds Wine to its prefix.
func (e *environment) installed() (*record.InstallationRecord, *wine.Wine, error) {
	rec, err := e.records.Load()
	if err != nil {
		return nil, nil, err
	}
	w, err := wine.New(e.runner, e.cfg, rec.PrefixPath(), rec.WineVariant)
	if err != nil {
		return nil, nil, err
	}
	return rec, w, nil
}

func (e *environment) launcher(rec *record.InstallationRecord, w *wine.Wine) *launcher.Launcher {
	return launcher.New(e.fs, w, rec, e.cfg.Wine.PhotoshopExe, newProcesses())
}

// executable is the running pswine binary with symlinks resolved, so the
// photoshop link never points at itself.
func executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate the pswine executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
