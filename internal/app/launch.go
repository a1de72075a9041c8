package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/launcher"
)

var launchCmd = &cobra.Command{
	Use:   "launch [files...]",
	Short: "Start Photoshop, optionally opening files",
	Long: `Start Photoshop inside its Wine prefix and wait for it to exit.

Files are converted to Windows paths; missing files are skipped. Wine's
output is appended to pswine-launch.log in the cache directory.

The photoshop command link runs this subcommand.`,
	Example: `  pswine launch
  pswine launch poster.psd banner.psb
  photoshop poster.psd`,
	RunE: runLaunch,
}

var winecfgCmd = &cobra.Command{
	Use:   "winecfg",
	Short: "Open the Wine configuration dialog for the Photoshop prefix",
	Args:  cobra.NoArgs,
	RunE:  runWinecfg,
}

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop Photoshop and every process in its Wine prefix",
	Long: `Send SIGTERM to Photoshop and run wineserver -k for its prefix.
Use this when Photoshop hangs or leaves processes behind.`,
	Args: cobra.NoArgs,
	RunE: runKill,
}

func init() {
	RootCmd.AddCommand(launchCmd)
	RootCmd.AddCommand(winecfgCmd)
	RootCmd.AddCommand(killCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	rec, w, err := env.installed()
	if err != nil {
		return err
	}

	l := env.launcher(rec, w)
	if pid, ok := l.Running(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Photoshop is already running (pid %d); starting another instance.\n", pid)
	}
	return l.Launch(cmd.Context(), args)
}

func runWinecfg(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	_, w, err := env.installed()
	if err != nil {
		return err
	}
	return w.Winecfg(cmd.Context())
}

func runKill(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	rec, w, err := env.installed()
	if err != nil {
		return err
	}

	n, err := env.launcher(rec, w).Kill(cmd.Context())
	if errors.Is(err, launcher.ErrNotRunning) {
		fmt.Fprintln(cmd.OutOrStdout(), "Photoshop is not running.")
		return nil
	}
	if n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Stopped %d process(es)\n", n)
	}
	return err
}
