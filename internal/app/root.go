package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/config"
	"github.com/blackwell-systems/pswine/internal/logging"
	"github.com/blackwell-systems/pswine/internal/prompt"
	"github.com/blackwell-systems/pswine/internal/shim"
	"github.com/blackwell-systems/pswine/internal/update"
)

// ExitDeclined is the exit status when the user answers no to a prompt.
const ExitDeclined = 5

// Version is set at build time with -ldflags "-X ...app.Version=v1.2.3".
var Version = "dev"

var (
	verbosity  int
	configFile string
	dataFile   string
	dataDir    string

	updateNotices <-chan *update.Notice

	// RootCmd is the root command for pswine
	RootCmd = &cobra.Command{
		Use:   "pswine",
		Short: "Install and run Adobe Photoshop CC 2019 under Wine",
		Long: `pswine installs Adobe Photoshop CC 2019 into a dedicated Wine prefix,
registers it with the desktop and launches it.

Every step of setup is recorded in a journal. Checkpoints mark points in
that journal, and rolling back to a checkpoint undoes everything recorded
after it.

Quick Start:
  1. pswine doctor
  2. pswine setup --installer ~/Downloads/photoshop
  3. photoshop image.psd

Examples:
  # Install into a custom directory
  pswine setup -d ~/apps/photoshop -c ~/.cache/photoshop

  # Undo the last setup step
  pswine checkpoint rollback latest

  # Show what is installed
  pswine status

  # Stop a hung Photoshop
  pswine kill`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(verbosity, config.StateDir())
			startUpdateCheck(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			printUpdateNotice(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "pswine: Photoshop CC 2019 on Wine")
			fmt.Fprintln(out)
			env, err := loadEnvironment(cmd)
			if err == nil && env.records.Exists() {
				fmt.Fprintln(out, "Run 'pswine launch' or 'photoshop' to start Photoshop.")
				fmt.Fprintln(out, "Run 'pswine status' to inspect the installation.")
			} else {
				fmt.Fprintln(out, "Run 'pswine doctor' to check prerequisites, then 'pswine setup'.")
			}
			fmt.Fprintln(out, "Run 'pswine --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/pswine/config.toml)")
	RootCmd.PersistentFlags().StringVar(&dataFile, "data-file", "", "installation record (default: ~/.psdata.txt)")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "journal and checkpoint directory (default: $XDG_DATA_HOME/pswine)")
	_ = RootCmd.PersistentFlags().MarkHidden("data-dir")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return RootCmd.ExecuteContext(ctx)
}

// ArgsFor maps an invocation through the photoshop command link to the
// launch subcommand. Other invocations pass through unchanged.
func ArgsFor(argv0 string, args []string) []string {
	if filepath.Base(argv0) != shim.LinkName {
		return args
	}
	return append([]string{"launch"}, args...)
}

// ExitCode maps an error returned by Execute to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, prompt.ErrDeclined):
		return ExitDeclined
	default:
		return 1
	}
}

func startUpdateCheck(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(osFs(), config.Path(configFile))
	if err != nil || !cfg.Update.Enabled {
		updateNotices = nil
		return
	}
	checker := update.NewChecker(cfg.Update.URL, Version, cfg.UpdateTimeout())
	updateNotices = update.Background(ctx, checker)
}

// printUpdateNotice prints a notice if the background check already
// finished. It never waits.
func printUpdateNotice(cmd *cobra.Command) {
	if updateNotices == nil {
		return
	}
	select {
	case notice, ok := <-updateNotices:
		if ok && notice != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n", notice)
		}
	default:
	}
}
