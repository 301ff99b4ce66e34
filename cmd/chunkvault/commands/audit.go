package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/internal/cli/output"
	"github.com/chunkvault/chunkvault/internal/cli/timeutil"
	"github.com/chunkvault/chunkvault/pkg/chunk"
)

var auditOutput string

var auditCmd = &cobra.Command{
	Use:   "audit <hash>",
	Short: "Show the audit trail for a chunk",
	Long: `Print every recorded decision about a chunk: deletions, skips,
recoveries, and the reference sources it held at each point.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "table", "Output format: table, json, yaml")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := output.ParseFormat(auditOutput)
	if err != nil {
		return err
	}

	hash := chunk.Hash(args[0])
	if !hash.Valid() {
		return fmt.Errorf("invalid chunk hash: %s", args[0])
	}

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	entries, err := b.ledger.AuditForChunk(ctx, hash)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format).Print(entries)
	}

	if len(entries) == 0 {
		fmt.Printf("No audit entries for %s\n", hash)
		return nil
	}

	table := output.NewTableData("TIME", "ACTION", "RUN", "SIZE", "REASON")
	for _, e := range entries {
		size := ""
		if e.Size > 0 {
			size = fmt.Sprintf("%d", e.Size)
		}
		table.AddRow(timeutil.FormatTime(e.CreatedAt), string(e.Action), e.RunID, size, e.Reason)
	}
	if err := output.PrintTable(os.Stdout, table); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Sources != "" && e.Sources != "[]" {
			fmt.Printf("\nsources at %s: %s\n", timeutil.FormatTime(e.CreatedAt), e.Sources)
		}
	}
	return nil
}
