package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kinos/types"
)

func TestStrictFailure(t *testing.T) {
	clean := &types.RunReport{Success: true}
	assert.NoError(t, strictFailure(clean, false))
	assert.NoError(t, strictFailure(clean, true))

	partial := &types.RunReport{
		Success: true,
		Errors: []types.UnitError{
			types.NewUnitError(types.PhaseCreate, "vol-1", assert.AnError),
		},
	}
	assert.NoError(t, strictFailure(partial, false))

	err := strictFailure(partial, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 unit error(s)")
}

func TestPrintReport(t *testing.T) {
	report := &types.RunReport{
		RunID:   "run-20260315-030000",
		Volumes: []string{"vol-1", "vol-2"},
		Created: []string{"snap-new-1", "snap-new-2"},
		Deleted: []string{"snap-old"},
		Held: []types.HeldSnapshot{
			{SnapshotID: "snap-held", Policy: "audit-window", Reason: "inside audit window"},
		},
		Errors: []types.UnitError{
			types.NewUnitError(types.PhaseCleanup, "snap-stuck", assert.AnError),
		},
		Success: true,
	}

	var buf bytes.Buffer
	printReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "Run run-20260315-030000: 2 volumes, 2 created, 1 deleted, 1 errors")
	assert.Contains(t, out, "created snap-new-1")
	assert.Contains(t, out, "deleted snap-old")
	assert.Contains(t, out, "held snap-held by audit-window: inside audit window")
	assert.Contains(t, out, "1 unit error(s):")
	assert.Contains(t, out, "cleanup snap-stuck:")
}

func TestPrintReport_DryRun(t *testing.T) {
	report := &types.RunReport{
		RunID:          "run-20260315-030000",
		DryRun:         true,
		Volumes:        []string{"vol-1"},
		PlannedCreates: []string{"vol-1"},
		PlannedDeletes: []string{"snap-old"},
		Success:        true,
	}

	var buf bytes.Buffer
	printReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "Dry run - nothing was changed")
	assert.Contains(t, out, "Would snapshot 1 volume(s):")
	assert.Contains(t, out, "Would delete 1 snapshot(s):")
	assert.NotContains(t, out, "created")
	assert.NotContains(t, out, "deleted")
}
