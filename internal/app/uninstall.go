package app

import (
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/installer"
)

var (
	uninstallFlagPurgeWine bool
	uninstallFlagYes       bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove Photoshop, its Wine prefix and the desktop integration",
	Long: `Remove everything setup created: the install and cache directories, the
desktop entry, the MIME type, the icon, the photoshop command link and the
PATH entry in your shell profile.

With --purge-wine the command configured in [uninstall] purge_command is
run afterwards to remove Wine itself.`,
	Example: `  pswine uninstall
  pswine uninstall --purge-wine --yes`,
	Args: cobra.NoArgs,
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallFlagPurgeWine, "purge-wine", false, "also run the configured Wine purge command")
	uninstallCmd.Flags().BoolVarP(&uninstallFlagYes, "yes", "y", false, "answer yes to every prompt")

	RootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	mgr, err := env.checkpoints()
	if err != nil {
		return err
	}

	inst := installer.New(installer.Deps{
		Config:      env.cfg,
		FS:          env.fs,
		Runner:      env.runner,
		Records:     env.records,
		Checkpoints: mgr,
		Guard:       env.guard,
		Confirm:     env.confirmer(cmd, uninstallFlagYes),
		Out:         cmd.OutOrStdout(),
		DataHome:    dataHome(),
	})

	return inst.Uninstall(cmd.Context(), installer.UninstallOptions{PurgeWine: uninstallFlagPurgeWine})
}
