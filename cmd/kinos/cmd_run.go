package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kinos/types"
)

var (
	runDryRun bool
	runStrict bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one snapshot cycle",
	Long: `Run one full snapshot cycle: discover tagged volumes, create a
snapshot per volume, delete each volume's snapshots older than the
retention window, and send the SNS summary.

Per-volume and per-snapshot failures are reported but never abort the
cycle or fail the command; pass --strict to exit nonzero when any
occurred. Failed volume discovery always exits nonzero, since the
cycle can do nothing without it.`,
	Example: `  kinos run                      # One cycle with config defaults
  kinos run --dry-run            # Print planned work, mutate nothing
  kinos run --strict             # Nonzero exit on partial failure
  kinos run --region eu-west-1   # Override configured region`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Evaluate and print planned work without mutating anything")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Exit nonzero if any per-unit error occurred")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := newCycleRuntime(ctx, cfg, runDryRun)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.orchestrator.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	rt.pruneJournal()

	printReport(os.Stdout, report)

	return strictFailure(report, runStrict)
}

// strictFailure converts unit errors into a nonzero exit under --strict
func strictFailure(report *types.RunReport, strict bool) error {
	if !strict || !report.Failed() {
		return nil
	}
	return fmt.Errorf("%d unit error(s) during cycle", len(report.Errors))
}

// printReport renders the cycle outcome for the terminal
func printReport(out io.Writer, report *types.RunReport) {
	if report.DryRun {
		fmt.Fprintf(out, "Dry run - nothing was changed\n\n")

		fmt.Fprintf(out, "Would snapshot %d volume(s):\n", len(report.PlannedCreates))
		for _, id := range report.PlannedCreates {
			fmt.Fprintf(out, "   %s\n", id)
		}

		fmt.Fprintf(out, "Would delete %d snapshot(s):\n", len(report.PlannedDeletes))
		for _, id := range report.PlannedDeletes {
			fmt.Fprintf(out, "   %s\n", id)
		}
	} else {
		fmt.Fprintf(out, "Run %s: %s\n", report.RunID, report.Summary())

		for _, id := range report.Created {
			fmt.Fprintf(out, "   created %s\n", id)
		}
		for _, id := range report.Deleted {
			fmt.Fprintf(out, "   deleted %s\n", id)
		}
	}

	for _, held := range report.Held {
		fmt.Fprintf(out, "   held %s by %s: %s\n", held.SnapshotID, held.Policy, held.Reason)
	}

	if len(report.Errors) > 0 {
		fmt.Fprintf(out, "\n%d unit error(s):\n", len(report.Errors))
		for _, unitErr := range report.Errors {
			fmt.Fprintf(out, "   %s\n", unitErr.Error())
		}
	}
}
