package app

import (
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/installer"
)

var (
	setupFlagInstallDir string
	setupFlagCacheDir   string
	setupFlagInstaller  string
	setupFlagVariant    string
	setupFlagYes        bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install Photoshop into a new Wine prefix",
	Long: `Create a Wine prefix, install the Windows components Photoshop needs,
install Photoshop from the Adobe installer and register it with the desktop.

Checkpoints are created after each major step. If a step fails you are
offered a rollback to the last one.

The installer may be the Adobe setup .exe, a tar archive of an installed
Photoshop directory, or such a directory.`,
	Example: `  pswine setup --installer ~/Downloads/photoshop
  pswine setup -d ~/apps/photoshop -c ~/.cache/photoshop --installer ps.tar.xz
  pswine setup --variant ge --yes`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().StringVarP(&setupFlagInstallDir, "install-dir", "d", "", "install directory (default from config)")
	setupCmd.Flags().StringVarP(&setupFlagCacheDir, "cache-dir", "c", "", "cache directory (default from config)")
	setupCmd.Flags().StringVar(&setupFlagInstaller, "installer", "", "Adobe installer: .exe, tar archive or directory")
	setupCmd.Flags().StringVar(&setupFlagVariant, "variant", "", "Wine variant from the config")
	setupCmd.Flags().BoolVarP(&setupFlagYes, "yes", "y", false, "answer yes to every prompt")

	RootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	mgr, err := env.checkpoints()
	if err != nil {
		return err
	}

	exe, err := executable()
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
		Confirm:     env.confirmer(cmd, setupFlagYes),
		Out:         cmd.OutOrStdout(),
		DataHome:    dataHome(),
	})

	return inst.Setup(cmd.Context(), installer.SetupOptions{
		InstallDir: setupFlagInstallDir,
		CacheDir:   setupFlagCacheDir,
		Variant:    setupFlagVariant,
		Payload:    setupFlagInstaller,
		Executable: exe,
	})
}
