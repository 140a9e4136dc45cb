package policy

import (
	"time"

	"github.com/yairfalse/kinos/types"
)

// Eligible computes which of a volume's snapshots may be deleted under the
// retention window. A snapshot qualifies iff it carries the filter tag with
// an accepted value AND its start time is strictly before the cutoff; a
// snapshot created exactly at the cutoff is retained. Both sides of the
// comparison are normalized to UTC. Input snapshots are assumed already
// scoped to one volume and to the owning account. Pure function: no I/O,
// no side effects, no ordering guarantee on the returned IDs.
func Eligible(snapshots []types.Snapshot, filter types.TagFilter, retentionDays int, now time.Time) []string {
	cutoff := Cutoff(now, retentionDays)

	var eligible []string
	for _, snap := range snapshots {
		if !filter.Matches(snap.Tags) {
			continue
		}
		if snap.StartTime.UTC().Before(cutoff) {
			eligible = append(eligible, snap.ID)
		}
	}
	return eligible
}

// Cutoff converts the retention window to the absolute instant before which
// snapshots become eligible for deletion. Callers compute it once per run so
// every volume is judged against the same cutoff even if processing spans
// time.
func Cutoff(now time.Time, retentionDays int) time.Time {
	return now.UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
}
