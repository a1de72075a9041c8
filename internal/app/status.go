package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/desktop"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/output"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/shim"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installation, its Wine prefix and checkpoints",
	Long: `Display what pswine knows about the installation:

  • Install and cache directories with their sizes
  • Wine variant and version
  • Whether Photoshop is running
  • Desktop entry and command link
  • Number of checkpoints`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	st := output.Status{RecordFile: env.records.Path()}

	rec, w, err := env.installed()
	if errors.Is(err, record.ErrNotInstalled) {
		fmt.Fprint(cmd.OutOrStdout(), output.RenderStatus(st))
		fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'pswine setup' to install Photoshop.")
		return nil
	}
	if err != nil {
		return err
	}

	logger := logging.Get("status")

	st.Installed = true
	st.InstallPath = rec.InstallPath
	st.CachePath = rec.CachePath
	st.WineVariant = rec.WineVariant
	st.PrefixExists, _ = afero.DirExists(env.fs, rec.PrefixPath())
	st.InstallSize = dirSize(env.fs, rec.InstallPath)
	st.CacheSize = dirSize(env.fs, rec.CachePath)

	if v, err := w.Version(cmd.Context()); err == nil {
		st.WineVersion = v
	} else {
		logger.Debug().Err(err).Msg("wine version unavailable")
	}

	if pid, ok := env.launcher(rec, w).Running(); ok {
		st.Running = true
		st.PID = int(pid)
	}

	st.DesktopEntry = desktop.New(env.fs, env.runner, nil, dataHome()).Installed()

	link := shim.LinkPath(env.cfg.Paths.BinDir)
	if target, err := os.Readlink(link); err == nil {
		st.CommandLink = link + " -> " + target
	}

	if mgr, err := env.checkpoints(); err == nil {
		if list, err := mgr.List(); err == nil && len(list) > 0 {
			st.Checkpoints = len(list)
			st.LastCheckpoint = list[0].CreatedAt
		}
	} else {
		logger.Debug().Err(err).Msg("journal unavailable")
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderStatus(st))
	return nil
}

// dirSize sums regular file sizes below root. Unreadable entries are
// skipped.
func dirSize(fsys afero.Fs, root string) int64 {
	var total int64
	_ = afero.Walk(fsys, root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
