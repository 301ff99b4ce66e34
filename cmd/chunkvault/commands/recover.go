package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/store"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <hash>",
	Short: "Recover a soft-deleted chunk",
	Long: `Recover a chunk whose ledger row was soft deleted.

Recovery clears the deletion marker so the chunk can take references
again. It only works within the recovery window and only restores the
ledger row; if the payload was already removed from the store, the
chunk's bytes must be uploaded again.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	hash := chunk.Hash(args[0])
	if !hash.Valid() {
		return fmt.Errorf("invalid chunk hash: %s", args[0])
	}

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.ledger.Recover(ctx, hash); err != nil {
		if errors.Is(err, ledger.ErrNotRecoverable) {
			return fmt.Errorf("chunk %s is not recoverable (row purged or never deleted)", hash)
		}
		return err
	}

	fmt.Printf("Ledger row recovered for %s\n", hash)

	if _, err := b.store.Get(ctx, hash); errors.Is(err, store.ErrChunkNotFound) {
		fmt.Println("Warning: the payload is no longer in the store; re-upload the chunk bytes")
	} else if err != nil {
		fmt.Printf("Warning: could not verify payload presence: %v\n", err)
	} else {
		fmt.Println("Payload verified present in the store")
	}
	return nil
}
