package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pswine/internal/output"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/store"
)

var (
	checkpointFlagYes       bool
	checkpointFlagOlderThan time.Duration
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "List, create and roll back to checkpoints",
	Long: `Checkpoints mark a position in the setup journal. Rolling back to a
checkpoint undoes every recorded step taken after it, newest first:
created directories are removed, modified files are restored and the
desktop databases are refreshed.

Setup creates checkpoints automatically; you can add your own before
changing the prefix by hand.`,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointList,
}

var checkpointCreateCmd = &cobra.Command{
	Use:     "create <name>",
	Short:   "Create a checkpoint at the current position of the journal",
	Example: `  pswine checkpoint create before-plugins`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCheckpointCreate,
}

var checkpointRollbackCmd = &cobra.Command{
	Use:   "rollback <name | latest>",
	Short: "Undo everything recorded after a checkpoint",
	Example: `  pswine checkpoint rollback latest
  pswine checkpoint rollback prefix-created --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpointRollback,
}

var checkpointPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old checkpoints",
	Long: `Delete checkpoints older than --older-than. The journal entries stay
and remain reachable from earlier checkpoints.`,
	Args: cobra.NoArgs,
	RunE: runCheckpointPrune,
}

func init() {
	checkpointRollbackCmd.Flags().BoolVarP(&checkpointFlagYes, "yes", "y", false, "skip confirmation prompt")
	checkpointPruneCmd.Flags().DurationVar(&checkpointFlagOlderThan, "older-than", 30*24*time.Hour, "age of the checkpoints to delete")

	checkpointCmd.AddCommand(checkpointListCmd, checkpointCreateCmd, checkpointRollbackCmd, checkpointPruneCmd)
	RootCmd.AddCommand(checkpointCmd)
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	mgr, err := env.checkpoints()
	if err != nil {
		return err
	}

	list, err := mgr.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderCheckpointTable(list))
	if len(list) > 0 {
		fmt.Fprintf(out, "\nRoll back with: pswine checkpoint rollback <name>\n")
	}
	return nil
}

func runCheckpointCreate(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	mgr, err := env.checkpoints()
	if err != nil {
		return err
	}

	rec, err := env.records.Load()
	if errors.Is(err, record.ErrNotInstalled) {
		rec = nil
	} else if err != nil {
		return err
	}

	cp, err := mgr.Create(args[0], rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created checkpoint %s\n", cp.Name)
	return nil
}

func runCheckpointRollback(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	mgr, err := env.checkpoints()
	if err != nil {
		return err
	}

	name := args[0]
	if strings.EqualFold(name, "latest") {
		name, err = mgr.Latest()
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no checkpoints available\n\nSetup creates checkpoints automatically; see 'pswine checkpoint create'")
		}
		if err != nil {
			return err
		}
	}

	list, err := mgr.List()
	if err != nil {
		return err
	}
	pending := -1
	for _, s := range list {
		if s.Name == name {
			pending = s.Pending
		}
	}
	if pending < 0 {
		return fmt.Errorf("checkpoint %q: %w\n\nRun 'pswine checkpoint list' to see available checkpoints", name, store.ErrNotFound)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rolling back to %s undoes %d recorded step(s).\n", name, pending)
	if err := env.confirmer(cmd, checkpointFlagYes).Require("Continue?"); err != nil {
		return err
	}

	spinner := output.NewSpinner(out, "Rolling back", 0)
	spinner.Start()
	_, err = mgr.Rollback(cmd.Context(), name)
	spinner.Stop()

	if err != nil {
		fmt.Fprintf(out, "\n⚠ Rollback completed with errors. Failed steps stay in the journal; run the rollback again after fixing them.\n")
		return err
	}
	fmt.Fprintf(out, "✓ Rolled back to %s\n", name)
	return nil
}

func runCheckpointPrune(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	mgr, err := env.checkpoints()
	if err != nil {
		return err
	}

	n, err := mgr.Prune(checkpointFlagOlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d checkpoint(s)\n", n)
	return nil
}
