package types

import (
	"fmt"
	"time"
)

// Phase identifies which stage of a run an event belongs to
type Phase string

const (
	PhaseDiscover Phase = "discover"
	PhaseCreate   Phase = "create"
	PhaseCleanup  Phase = "cleanup"
	PhaseNotify   Phase = "notify"
)

// UnitError records a recoverable failure scoped to one volume or snapshot.
// The run continues past it; the report collects them.
type UnitError struct {
	Phase  Phase  `json:"phase"`
	UnitID string `json:"unit_id"`
	Cause  string `json:"cause"`

	err error
}

// NewUnitError wraps a failure with its phase and unit
func NewUnitError(phase Phase, unitID string, err error) UnitError {
	ue := UnitError{Phase: phase, UnitID: unitID, err: err}
	if err != nil {
		ue.Cause = err.Error()
	}
	return ue
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Phase, e.UnitID, e.Cause)
}

func (e UnitError) Unwrap() error {
	return e.err
}

// HeldSnapshot records a deletion blocked by a hold policy
type HeldSnapshot struct {
	SnapshotID string `json:"snapshot_id"`
	Policy     string `json:"policy"`
	Reason     string `json:"reason,omitempty"`
}

// RunReport is the outcome of one run cycle. It exists for observability
// only; retention decisions never read past reports.
type RunReport struct {
	RunID    string    `json:"run_id"`
	Region   string    `json:"region,omitempty"`
	Account  string    `json:"account,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	DryRun   bool      `json:"dry_run,omitempty"`

	Volumes []string       `json:"volumes,omitempty"`
	Created []string       `json:"created,omitempty"`
	Deleted []string       `json:"deleted,omitempty"`
	Held    []HeldSnapshot `json:"held,omitempty"`

	// Dry-run plans; populated instead of Created/Deleted
	PlannedCreates []string `json:"planned_creates,omitempty"`
	PlannedDeletes []string `json:"planned_deletes,omitempty"`

	Errors   []UnitError `json:"errors,omitempty"`
	Message  string      `json:"message,omitempty"`
	Notified bool        `json:"notified,omitempty"`
	Success  bool        `json:"success"`
}

// Duration of the run
func (r *RunReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Failed reports whether any unit of work failed
func (r *RunReport) Failed() bool {
	return len(r.Errors) > 0
}

// Summary renders a one-line account of the run
func (r *RunReport) Summary() string {
	if r.DryRun {
		return fmt.Sprintf("%d volumes, %d creates planned, %d deletes planned",
			len(r.Volumes), len(r.PlannedCreates), len(r.PlannedDeletes))
	}
	return fmt.Sprintf("%d volumes, %d created, %d deleted, %d errors",
		len(r.Volumes), len(r.Created), len(r.Deleted), len(r.Errors))
}
