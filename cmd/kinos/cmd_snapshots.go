package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kinos/orchestrator"
	"github.com/yairfalse/kinos/policy"
	"github.com/yairfalse/kinos/providers/aws"
	"github.com/yairfalse/kinos/types"
)

// snapshotsCmd represents the snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Show tagged volumes and their snapshots",
	Long: `Read-only inventory of the volumes Kinos manages: every tagged
volume with its snapshots, their ages, and which are past the
retention window. Nothing is created or deleted.`,
	Example: `  kinos snapshots                    # Inventory for configured region
  kinos snapshots --region us-west-2 # Inventory elsewhere`,
	RunE: runSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	provider, err := aws.New(ctx, aws.Config{Region: cfg.Region})
	if err != nil {
		return fmt.Errorf("failed to create aws provider: %w", err)
	}

	fmt.Printf("Tagged volumes in %s (retention %d days):\n\n",
		provider.Region(), cfg.RetentionDays)

	inventory, err := collectInventory(ctx, provider, cfg.Filter(), cfg.RetentionDays, time.Now())
	if err != nil {
		return err
	}

	renderInventory(os.Stdout, inventory)
	return nil
}

// snapshotRow is one snapshot with its derived inventory columns
type snapshotRow struct {
	snapshot types.Snapshot
	ageDays  float64
	expired  bool
}

// volumeInventory is one volume's snapshots, or the listing failure
type volumeInventory struct {
	volume    types.Volume
	snapshots []snapshotRow
	err       error
}

// collectInventory lists each tagged volume's snapshots. Expiry is judged by
// the same engine the run path deletes by, so this view never disagrees with
// what a run would do. A volume whose listing fails is reported in place and
// the rest continue.
func collectInventory(ctx context.Context, inv orchestrator.Inventory, filter types.TagFilter, retentionDays int, now time.Time) ([]volumeInventory, error) {
	volumes, err := inv.ListTaggedVolumes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("volume discovery failed: %w", err)
	}

	var result []volumeInventory
	for _, volume := range volumes {
		entry := volumeInventory{volume: volume}

		snapshots, err := inv.ListVolumeSnapshots(ctx, volume.ID, filter)
		if err != nil {
			entry.err = err
			result = append(result, entry)
			continue
		}

		expired := make(map[string]bool)
		for _, id := range policy.Eligible(snapshots, filter, retentionDays, now) {
			expired[id] = true
		}

		for _, snapshot := range snapshots {
			entry.snapshots = append(entry.snapshots, snapshotRow{
				snapshot: snapshot,
				ageDays:  snapshot.Age(now).Hours() / 24,
				expired:  expired[snapshot.ID],
			})
		}

		result = append(result, entry)
	}

	return result, nil
}

// renderInventory writes the inventory as a table
func renderInventory(out io.Writer, inventory []volumeInventory) {
	if len(inventory) == 0 {
		fmt.Fprintln(out, "No tagged volumes found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VOLUME\tSNAPSHOT\tSTATE\tAGE\tEXPIRED")
	fmt.Fprintln(w, "------\t--------\t-----\t---\t-------")

	var totalSnapshots, totalExpired int
	for _, entry := range inventory {
		if entry.err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\terror: %v\n", entry.volume.ID, entry.err)
			continue
		}
		if len(entry.snapshots) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\n", entry.volume.ID)
			continue
		}

		for _, row := range entry.snapshots {
			expired := ""
			if row.expired {
				expired = "yes"
				totalExpired++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1fd\t%s\n",
				entry.volume.ID,
				row.snapshot.ID,
				row.snapshot.State,
				row.ageDays,
				expired,
			)
			totalSnapshots++
		}
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\n%d volume(s), %d snapshot(s), %d past retention\n",
		len(inventory), totalSnapshots, totalExpired)
}
