package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/checkpoint"
	"github.com/blackwell-systems/pswine/internal/desktop"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/output"
	"github.com/blackwell-systems/pswine/internal/paths"
	"github.com/blackwell-systems/pswine/internal/prereq"
	"github.com/blackwell-systems/pswine/internal/prompt"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/retry"
	"github.com/blackwell-systems/pswine/internal/shell"
	"github.com/blackwell-systems/pswine/internal/shim"
	"github.com/blackwell-systems/pswine/internal/wait"
	"github.com/blackwell-systems/pswine/internal/wine"
)

// SetupOptions are the inputs of one setup run.
type SetupOptions struct {
	InstallDir string
	CacheDir   string
	Variant    string

	// Payload is the Adobe installer: a Windows .exe, a tar archive of an
	// installed Photoshop directory, or such a directory itself. Empty
	// skips the step.
	Payload string

	// Executable is the pswine binary the desktop entry and the command
	// link point at.
	Executable string
}

// setupSteps are the progress steps install reports, in order.
var setupSteps = []string{
	"Preparing directories",
	"Creating Wine prefix",
	"Installing Windows components",
	"Setting Windows version",
	"Installing Photoshop",
	"Registering desktop entry",
	"Linking the photoshop command",
}

// Setup installs Photoshop. When a step fails after the first checkpoint
// the user is offered a rollback to the latest checkpoint.
func (in *Installer) Setup(ctx context.Context, opts SetupOptions) error {
	logger := logging.Get("installer")
	done := logging.LogOperationStart(logger, "setup")
	defer done()

	rec, err := in.preflight(opts)
	if err != nil {
		return err
	}

	if _, err := in.Checkpoints.Create(CheckpointStart, rec); err != nil {
		return err
	}

	if err := in.install(ctx, rec, opts); err != nil {
		logger.Error().Err(err).Msg("setup failed")
		if !errors.Is(err, prompt.ErrDeclined) {
			in.offerRollback(ctx, err)
		}
		return err
	}

	desktop.Notify(ctx, in.Runner, "Photoshop CC", "Installation finished")
	fmt.Fprintf(in.Out, "\n✓ Photoshop installed in %s\n", rec.InstallPath)
	fmt.Fprintf(in.Out, "  Start it with '%s' or from the application menu.\n", shim.LinkName)
	return nil
}

// preflight validates the paths and checks prerequisites. It changes
// nothing on disk.
func (in *Installer) preflight(opts SetupOptions) (*record.InstallationRecord, error) {
	logger := logging.Get("installer")

	installDir := paths.ExpandHome(opts.InstallDir)
	if installDir == "" {
		installDir = in.Config.Paths.DefaultInstallDir
	}
	cacheDir := paths.ExpandHome(opts.CacheDir)
	if cacheDir == "" {
		cacheDir = in.Config.Paths.DefaultCacheDir
	}

	var err error
	if installDir, err = in.Guard.Check(installDir); err != nil {
		return nil, fmt.Errorf("install directory: %w", err)
	}
	if cacheDir, err = in.Guard.Check(cacheDir); err != nil {
		return nil, fmt.Errorf("cache directory: %w", err)
	}

	if _, err := in.Config.Variant(opts.Variant); err != nil {
		return nil, err
	}

	rec := &record.InstallationRecord{
		InstallPath: installDir,
		CachePath:   cacheDir,
		WineVariant: opts.Variant,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	w, err := wine.New(in.Runner, in.Config, rec.PrefixPath(), rec.WineVariant)
	if err != nil {
		return nil, err
	}
	report := prereq.Check(in.Runner, prereq.Programs(w.Bin, in.Config.Wine.Winetricks))
	if err := report.Err(); err != nil {
		fmt.Fprint(in.Out, output.RenderDoctor(report))
		if !in.Confirm.Confirm(fmt.Sprintf("%v. Continue anyway?", err)) {
			return nil, fmt.Errorf("%w: %w", prompt.ErrDeclined, err)
		}
	}

	if free, err := prereq.FreeSpace(installDir); err == nil && free < prereq.MinFreeBytes {
		fmt.Fprintf(in.Out, "⚠ Only %s free at %s; Photoshop needs about %s.\n",
			output.FormatSize(int64(free)), installDir, output.FormatSize(int64(prereq.MinFreeBytes)))
	}

	if exists, _ := afero.DirExists(in.FS, rec.PrefixPath()); exists {
		if err := in.Confirm.Require(fmt.Sprintf("A Wine prefix already exists at %s. Reuse it?", rec.PrefixPath())); err != nil {
			return nil, err
		}
	}

	logger.Info().Str("install", installDir).Str("cache", cacheDir).Str("variant", opts.Variant).Msg("preflight passed")
	return rec, nil
}

func (in *Installer) install(ctx context.Context, rec *record.InstallationRecord, opts SetupOptions) (err error) {
	steps := output.NewSteps(in.Out, setupSteps...)
	defer func() {
		if err != nil {
			steps.Fail()
			return
		}
		steps.Done()
	}()

	steps.Next()
	for _, dir := range []string{rec.InstallPath, rec.CachePath, rec.ResourcesPath()} {
		if err := in.mkdir(dir); err != nil {
			return err
		}
	}

	if err := in.Checkpoints.Modifying(in.Records.Path()); err != nil {
		return err
	}
	if err := in.Records.Save(rec); err != nil {
		return err
	}

	w, err := wine.New(in.Runner, in.Config, rec.PrefixPath(), rec.WineVariant)
	if err != nil {
		return err
	}

	steps.Next()
	if err := in.createPrefix(ctx, w); err != nil {
		return err
	}
	if _, err := in.Checkpoints.Create(CheckpointPrefix, rec); err != nil {
		return err
	}

	steps.Next()
	if err := in.installComponents(ctx, w); err != nil {
		return err
	}

	steps.Next()
	if err := retry.Do(ctx, in.retryPolicy(), func(ctx context.Context, _ int) error {
		return w.SetWindowsVersion(ctx, in.Config.Wine.WindowsVersion)
	}); err != nil {
		return err
	}
	if _, err := in.Checkpoints.Create(CheckpointComponents, rec); err != nil {
		return err
	}

	steps.Next()
	if err := in.installPayload(ctx, w, rec, opts.Payload); err != nil {
		return err
	}
	if _, err := in.Checkpoints.Create(CheckpointPhotoshop, rec); err != nil {
		return err
	}

	steps.Next()
	icon := in.Config.Wine.Icon
	if icon == "" {
		icon = filepath.Join(rec.ResourcesPath(), desktop.IconName+".png")
	}
	integrator := desktop.New(in.FS, in.Runner, in.Checkpoints, in.DataHome)
	if err := integrator.Install(ctx, opts.Executable, icon); err != nil {
		return err
	}

	steps.Next()
	if err := in.linkCommand(ctx, opts.Executable); err != nil {
		return err
	}

	_, err = in.Checkpoints.Create(CheckpointComplete, rec)
	return err
}

// waitWithSpinner runs a registry wait behind a spinner that shows the
// file's current size.
func (in *Installer) waitWithSpinner(message, file string, waitFor func(wait.Options) error) error {
	spinner := output.NewSpinner(in.Out, message, in.Config.WaitTimeout())
	spinner.Start()
	defer spinner.Stop()

	opts := in.waitOptions()
	opts.OnPoll = func(size int64) {
		if size >= 0 {
			spinner.Detail(file + " " + output.FormatSize(size))
		}
	}
	return waitFor(opts)
}

// mkdir creates dir and journals its removal when it did not exist.
func (in *Installer) mkdir(dir string) error {
	exists, err := afero.DirExists(in.FS, dir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := in.FS.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return in.Checkpoints.Created(dir)
}

func (in *Installer) createPrefix(ctx context.Context, w *wine.Wine) error {
	existed, _ := afero.DirExists(in.FS, w.Prefix())

	err := retry.Do(ctx, in.retryPolicy(), func(ctx context.Context, _ int) error {
		return w.Boot(ctx)
	})
	if !existed {
		// Journal the prefix even on failure; wineboot may have left half of it.
		if jerr := in.Checkpoints.Created(w.Prefix()); jerr != nil {
			return errors.Join(err, jerr)
		}
	}
	if err != nil {
		return err
	}

	if err := in.waitWithSpinner("Waiting for the Wine prefix", "system.reg", func(opts wait.Options) error {
		return wait.ForWinePrefix(ctx, w.Prefix(), opts)
	}); err != nil {
		return fmt.Errorf("wine prefix not ready: %w", err)
	}
	return nil
}

// installComponents runs winetricks in the background while watching the
// user registry, then waits for winetricks to exit. The whole attempt is
// retried.
func (in *Installer) installComponents(ctx context.Context, w *wine.Wine) error {
	logger := logging.Get("installer")
	verbs := in.Config.Wine.Components
	if len(verbs) == 0 {
		return nil
	}

	return retry.Do(ctx, in.retryPolicy(), func(ctx context.Context, attempt int) error {
		c := w.WinetricksCommand(verbs...)
		logging.LogCommand(logger, c.Name, c.Args)

		proc, err := in.Runner.Start(ctx, c)
		if err != nil {
			return err
		}

		message := "Installing " + strings.Join(verbs, ", ")
		if err := in.waitWithSpinner(message, "user.reg", func(opts wait.Options) error {
			return wait.ForUserRegistry(ctx, w.Prefix(), opts)
		}); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("user registry did not settle")
		}

		if err := proc.Wait(); err != nil {
			return fmt.Errorf("winetricks failed: %w", err)
		}
		return nil
	})
}

func (in *Installer) linkCommand(ctx context.Context, executable string) error {
	logger := logging.Get("installer")
	binDir := in.Config.Paths.BinDir

	linker := shim.New(in.Guard, in.Runner, in.Checkpoints)
	if _, err := linker.Install(ctx, binDir, executable); err != nil {
		return err
	}

	if shim.OnPath(binDir, os.Getenv("PATH")) {
		return nil
	}
	added, profile, err := shell.EnsurePathEntry(in.FS, in.Checkpoints, binDir)
	if err != nil {
		// The link works with a full path; PATH is a convenience.
		logger.Warn().Err(err).Msg("could not update shell profile")
		return nil
	}
	if added {
		fmt.Fprintf(in.Out, "\nAdded %s to PATH in %s. Open a new shell to use '%s'.\n", binDir, profile, shim.LinkName)
	}
	return nil
}

// offerRollback asks whether to undo the failed setup. It offers the
// newest checkpoint that still has steps to undo, so a failure right after
// a checkpoint falls back to the one before it. The rollback runs even if
// ctx was cancelled.
func (in *Installer) offerRollback(ctx context.Context, cause error) {
	logger := logging.Get("installer")

	list, err := in.Checkpoints.List()
	if err != nil {
		logger.Warn().Err(err).Msg("cannot list checkpoints")
		return
	}
	var target *checkpoint.Summary
	for _, s := range list {
		if s.Pending > 0 {
			target = s
			break
		}
	}

	fmt.Fprintf(in.Out, "\n✗ Setup failed: %v\n", cause)
	if target == nil {
		fmt.Fprintln(in.Out, "Nothing was changed that needs rolling back.")
		return
	}

	question := fmt.Sprintf("Roll back to checkpoint %q? This undoes %d recorded step(s).", target.Name, target.Pending)
	if !in.Confirm.Confirm(question) {
		fmt.Fprintf(in.Out, "Left as is. Run 'pswine checkpoint rollback %s' later to undo.\n", target.Name)
		return
	}

	if _, err := in.Checkpoints.Rollback(context.WithoutCancel(ctx), target.Name); err != nil {
		logger.Error().Err(err).Msg("rollback incomplete")
		fmt.Fprintf(in.Out, "⚠ Rollback completed with errors: %v\n", err)
		return
	}
	fmt.Fprintf(in.Out, "✓ Rolled back to %s (%d step(s) undone)\n", target.Name, target.Pending)
}
