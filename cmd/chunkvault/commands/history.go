package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/internal/cli/output"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past collection runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json, yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	runs, err := b.ledger.ListRuns(ctx, historyLimit, 0)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format).Print(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No collection runs recorded")
		return nil
	}

	table := output.NewTableData("RUN", "STRATEGY", "TRIGGER", "STATUS", "SCANNED", "DELETED", "RECLAIMED")
	for _, run := range runs {
		status := string(run.Status)
		if run.DryRun {
			status += " (dry)"
		}
		table.AddRow(
			run.ID,
			run.Strategy,
			run.Trigger,
			status,
			fmt.Sprintf("%d", run.ChunksScanned),
			fmt.Sprintf("%d", run.ChunksDeleted),
			fmt.Sprintf("%d", run.BytesReclaimed),
		)
	}
	return output.PrintTable(os.Stdout, table)
}
