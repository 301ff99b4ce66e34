package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chunkvault/chunkvault/internal/cli/output"
	"github.com/chunkvault/chunkvault/internal/cli/timeutil"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format: table, json, yaml")
}

type statusReport struct {
	LiveChunks       int64      `json:"live_chunks" yaml:"live_chunks"`
	PendingDeletion  int64      `json:"pending_deletion" yaml:"pending_deletion"`
	ReclaimableBytes int64      `json:"reclaimable_bytes" yaml:"reclaimable_bytes"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	NextScheduledAt  *time.Time `json:"next_scheduled_at,omitempty" yaml:"next_scheduled_at,omitempty"`
	LeaseHolder      string     `json:"lease_holder,omitempty" yaml:"lease_holder,omitempty"`
	Halted           bool       `json:"halted" yaml:"halted"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	state, err := b.ledger.GetSchedulerState(ctx)
	if err != nil {
		return err
	}
	pending, err := b.ledger.PendingCount(ctx)
	if err != nil {
		return err
	}
	reclaimable, err := b.ledger.ReclaimableBytes(ctx)
	if err != nil {
		return err
	}
	chunks, err := b.ledger.ChunkCount(ctx)
	if err != nil {
		return err
	}
	holder, err := b.coord.Holder(ctx)
	if err != nil {
		return err
	}

	report := statusReport{
		LiveChunks:       chunks,
		PendingDeletion:  pending,
		ReclaimableBytes: reclaimable,
		LastRunAt:        state.LastRunAt,
		NextScheduledAt:  state.NextScheduledAt,
		LeaseHolder:      holder,
		Halted:           state.Halted,
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format).Print(report)
	}

	lastRun := "never"
	if report.LastRunAt != nil {
		lastRun = timeutil.FormatTime(*report.LastRunAt)
	}
	pairs := [][2]string{
		{"live chunks", fmt.Sprintf("%d", report.LiveChunks)},
		{"pending deletion", fmt.Sprintf("%d", report.PendingDeletion)},
		{"reclaimable bytes", fmt.Sprintf("%d", report.ReclaimableBytes)},
		{"last run", lastRun},
	}
	if report.NextScheduledAt != nil {
		pairs = append(pairs, [2]string{"next scheduled", timeutil.FormatTime(*report.NextScheduledAt)})
	}
	if report.LeaseHolder != "" {
		pairs = append(pairs, [2]string{"lease holder", report.LeaseHolder})
	}
	pairs = append(pairs, [2]string{"halted", fmt.Sprintf("%v", report.Halted)})

	return output.SimpleTable(os.Stdout, pairs)
}
