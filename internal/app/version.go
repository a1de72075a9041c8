package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pswine version and check for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "pswine %s\n", Version)

		// The check is bounded by [update] timeout; wait for it here.
		if updateNotices != nil {
			for notice := range updateNotices {
				fmt.Fprintln(cmd.OutOrStdout(), notice)
			}
			updateNotices = nil
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
