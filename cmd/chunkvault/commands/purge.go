package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/internal/cli/prompt"
)

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Hard-delete ledger rows past the recovery window",
	Long: `Remove soft-deleted ledger rows whose recovery window has expired.

The server runs this automatically once a day; the command exists for
one-off cleanup and for deployments that only run the CLI.`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ok, err := prompt.ConfirmWithForce("Permanently remove expired soft-deleted rows?", purgeYes)
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

	purged, err := b.ledger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d expired ledger rows\n", purged)
	return nil
}
