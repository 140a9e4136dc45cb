package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kinos/catalog"
	"github.com/yairfalse/kinos/types"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent run reports",
	Long: `Show recent snapshot cycles from the local catalog, newest first:
what each run discovered, created, deleted, and whether anything
failed. Reads only local state; AWS is not contacted.`,
	Example: `  kinos history              # Last 10 runs
  kinos history --limit 50   # Further back
  kinos history --limit 0    # Everything the catalog holds`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	runs, err := cat.RecentRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	renderHistory(os.Stdout, runs)
	return nil
}

// renderHistory writes recent runs as a table, newest first
func renderHistory(out io.Writer, runs []types.RunReport) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tVOLUMES\tCREATED\tDELETED\tHELD\tERRORS\tRESULT")
	fmt.Fprintln(w, "---\t-------\t--------\t-------\t-------\t-------\t----\t------\t------")

	for _, run := range runs {
		result := "ok"
		switch {
		case !run.Success:
			result = "failed"
		case run.Failed():
			result = "partial"
		case run.DryRun:
			result = "dry-run"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			run.RunID,
			run.Started.Format("2006-01-02 15:04:05"),
			run.Duration().Round(time.Millisecond),
			len(run.Volumes),
			len(run.Created),
			len(run.Deleted),
			len(run.Held),
			len(run.Errors),
			result,
		)
	}
	_ = w.Flush()
}
