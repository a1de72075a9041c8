package installer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/desktop"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/shell"
	"github.com/blackwell-systems/pswine/internal/shim"
	"github.com/blackwell-systems/pswine/internal/wine"
)

// UninstallOptions control what Uninstall removes besides Photoshop.
type UninstallOptions struct {
	// PurgeWine runs the configured purge command after confirmation.
	PurgeWine bool
}

// Uninstall removes the installation. The journal is replayed first; the
// explicit removals afterwards cover anything it did not record. Every
// step runs; failures are joined.
func (in *Installer) Uninstall(ctx context.Context, opts UninstallOptions) error {
	logger := logging.Get("installer")
	done := logging.LogOperationStart(logger, "uninstall")
	defer done()

	rec, err := in.Records.Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(in.Out, "This removes Photoshop and its Wine prefix:\n  %s\n  %s\n", rec.InstallPath, rec.CachePath)
	if err := in.Confirm.Require("Uninstall Photoshop?"); err != nil {
		return err
	}

	var errs []error

	if w, err := wine.New(in.Runner, in.Config, rec.PrefixPath(), rec.WineVariant); err == nil {
		if err := w.KillServer(ctx); err != nil {
			logger.Debug().Err(err).Msg("wineserver was not running")
		}
	}

	if err := in.Checkpoints.RollbackAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("journal replay: %w", err))
	}

	if err := desktop.New(in.FS, in.Runner, nil, in.DataHome).Remove(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := shim.New(in.Guard, in.Runner, nil).Remove(ctx, in.Config.Paths.BinDir); err != nil {
		errs = append(errs, err)
	}
	if home, err := os.UserHomeDir(); err == nil {
		profile, _ := shell.ProfilePath(home, os.Getenv("SHELL"))
		if _, err := shell.RemovePathEntry(in.FS, profile); err != nil {
			errs = append(errs, err)
		}
	}

	for _, dir := range []string{rec.InstallPath, rec.CachePath} {
		if err := in.removeDir(dir); err != nil {
			errs = append(errs, err)
		}
	}

	if err := in.Records.Remove(); err != nil {
		errs = append(errs, err)
	}

	if n, err := in.Checkpoints.Prune(0); err != nil {
		errs = append(errs, err)
	} else {
		logger.Debug().Int("removed", n).Msg("pruned checkpoints")
	}

	if opts.PurgeWine {
		if err := in.purgeWine(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(in.Out, "⚠ Uninstall finished with errors\n")
		return err
	}
	fmt.Fprintf(in.Out, "✓ Photoshop uninstalled\n")
	return nil
}

func (in *Installer) removeDir(dir string) error {
	safe, err := in.Guard.Check(dir)
	if err != nil {
		return err
	}
	if err := in.FS.RemoveAll(safe); err != nil {
		return fmt.Errorf("failed to remove %s: %w", safe, err)
	}
	return nil
}

func (in *Installer) purgeWine(ctx context.Context) error {
	argv := in.Config.Uninstall.PurgeCommand
	if len(argv) == 0 {
		fmt.Fprintf(in.Out, "No purge command configured; Wine left installed.\n")
		return nil
	}
	c := command.Command{Name: argv[0], Args: argv[1:]}
	if !in.Confirm.Confirm(fmt.Sprintf("Run '%s' to remove Wine?", c)) {
		return nil
	}
	logging.LogCommand(logging.Get("installer"), c.Name, c.Args)
	if _, err := in.Runner.Run(ctx, c); err != nil {
		return fmt.Errorf("purge command failed: %w", err)
	}
	return nil
}
