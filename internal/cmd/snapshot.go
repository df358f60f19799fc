package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create or restore volume snapshots directly",
	Long: `Drive the configured snapshot primitive without a transaction.

Rolling back restores the whole volume, including changes made by other
processes since the snapshot was taken.`,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of the configured volume",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotCreate,
}

var snapshotRollbackCmd = &cobra.Command{
	Use:   "rollback <name>",
	Short: "Roll the configured volume back to a named snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotRollback,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRollbackCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	snap, err := rt.controller().CreateSnapshot(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Created snapshot"), snap.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (%s)\n", labelStyle.Render("volume:"), snap.Volume, rt.prim.Backend())
	return nil
}

func runSnapshotRollback(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	name := args[0]
	if err := rt.controller().RollbackTo(cmd.Context(), name); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Rolled back to"), name)
	return nil
}
