package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/config"
	"github.com/blackwell-systems/pswine/internal/output"
	"github.com/blackwell-systems/pswine/internal/prereq"
	"github.com/blackwell-systems/pswine/internal/wine"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that Wine, winetricks and the desktop tools are installed",
	Long: `Runs diagnostic checks before setup:

Checks:
  • wine, wineserver and winetricks (required)
  • notify-send and the desktop database tools (optional)
  • Free disk space at the install directory`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Running pswine diagnostics...")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config: %s\n\n", config.Path(configFile))

	installDir := env.cfg.Paths.DefaultInstallDir
	variant := ""
	if rec, err := env.records.Load(); err == nil {
		installDir = rec.InstallPath
		variant = rec.WineVariant
	}

	w, err := wine.New(env.runner, env.cfg, "", variant)
	if err != nil {
		return err
	}

	report := prereq.Check(env.runner, prereq.Programs(w.Bin, env.cfg.Wine.Winetricks))
	fmt.Fprint(out, output.RenderDoctor(report))

	if free, err := prereq.FreeSpace(installDir); err == nil {
		mark := "✓"
		if free < prereq.MinFreeBytes {
			mark = "⚠"
		}
		fmt.Fprintf(out, "%s %s free at %s\n", mark, output.FormatSize(int64(free)), installDir)
	}

	fmt.Fprintln(out)
	if err := report.Err(); err != nil {
		fmt.Fprintln(out, "Install the missing programs before running 'pswine setup'.")
		return err
	}
	fmt.Fprintln(out, "✓ All required programs found")
	return nil
}
