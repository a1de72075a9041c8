package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/config"
)

var configFlagDefaults bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Long: `Print the configuration pswine runs with: the config file merged over
the built-in defaults. With --defaults only the defaults are printed,
which is a good starting point for a config file.`,
	Example: `  pswine config
  pswine config --defaults > ~/.config/pswine/config.toml`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configFlagDefaults, "defaults", false, "print the built-in defaults")
	RootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if !configFlagDefaults {
		loaded, err := config.Load(osFs(), config.Path(configFile))
		if err != nil {
			return err
		}
		cfg = loaded
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.Path(configFile))
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
