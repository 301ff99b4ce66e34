package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/internal/cli/prompt"
)

var (
	haltReason string
	haltYes    bool
)

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Emergency stop: disable collection and clear the pending set",
	Long: `Immediately stop all garbage collection.

Halt sets a persisted flag that suppresses scheduled and pressure runs
on every node, and clears the pending-deletion set so nothing is
eligible even after resume until chunks are marked again. Use it when a
counting bug is suspected and deletions must stop now.`,
	RunE: runHalt,
}

func init() {
	haltCmd.Flags().StringVar(&haltReason, "reason", "operator halt", "Reason recorded on the audit trail")
	haltCmd.Flags().BoolVarP(&haltYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runHalt(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ok, err := prompt.ConfirmWithForce("Halt collection and clear the pending-deletion set?", haltYes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted")
		return nil
	}

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.ledger.Halt(ctx, haltReason); err != nil {
		return err
	}
	fmt.Println("Collection halted. Run 'chunkvault resume' to re-enable.")
	return nil
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-enable collection after a halt",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.close()

		if err := b.ledger.Resume(ctx); err != nil {
			return err
		}
		fmt.Println("Collection resumed. The pending set is empty; chunks become")
		fmt.Println("eligible again as decrements or sweeps re-mark them.")
		return nil
	},
}
