package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yairfalse/kinos/catalog"
	"github.com/yairfalse/kinos/journal"
	"github.com/yairfalse/kinos/policy"
	"github.com/yairfalse/kinos/telemetry"
	"github.com/yairfalse/kinos/types"
)

const notifySubject = "EBS Snapshot Notification"

// Orchestrator coordinates the discover → create → cleanup → notify flow.
// Volumes are processed sequentially, each to completion; a failure on one
// unit of work never stops the rest of the run.
type Orchestrator struct {
	inventory     Inventory
	notifier      Notifier
	guard         *policy.Guard
	journal       *journal.Journal
	catalog       *catalog.Catalog
	filter        types.TagFilter
	retentionDays int
	region        string
	account       string
	dryRun        bool
	now           func() time.Time
	logger        *telemetry.Logger
}

// NewOrchestrator creates an orchestrator for the given inventory and policy
func NewOrchestrator(inventory Inventory, filter types.TagFilter, retentionDays int) *Orchestrator {
	return &Orchestrator{
		inventory:     inventory,
		filter:        filter,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        telemetry.NewLogger("orchestrator"),
	}
}

// WithNotifier sets the notification sink
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// WithGuard sets the deletion guard
func (o *Orchestrator) WithGuard(g *policy.Guard) *Orchestrator {
	o.guard = g
	return o
}

// WithJournal sets the run journal
func (o *Orchestrator) WithJournal(j *journal.Journal) *Orchestrator {
	o.journal = j
	return o
}

// WithCatalog sets the snapshot catalog
func (o *Orchestrator) WithCatalog(c *catalog.Catalog) *Orchestrator {
	o.catalog = c
	return o
}

// WithIdentity stamps reports with the account and region being managed
func (o *Orchestrator) WithIdentity(region, account string) *Orchestrator {
	o.region = region
	o.account = account
	return o
}

// WithDryRun plans creations and deletions without mutating anything
func (o *Orchestrator) WithDryRun(dryRun bool) *Orchestrator {
	o.dryRun = dryRun
	return o
}

// WithClock sets the time source
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// RunCycle runs one snapshot lifecycle cycle. The returned report is always
// populated; the error is non-nil only when discovery failed.
func (o *Orchestrator) RunCycle(ctx context.Context) (*types.RunReport, error) {
	now := o.now().UTC()
	report := &types.RunReport{
		RunID:   fmt.Sprintf("run-%s", now.Format("20060102-150405")),
		Region:  o.region,
		Account: o.account,
		Started: now,
		DryRun:  o.dryRun,
		Success: true,
	}

	o.logger.WithContext(ctx).Info().
		Str("run_id", report.RunID).
		Str("tag_key", o.filter.Key).
		Int("retention_days", o.retentionDays).
		Bool("dry_run", o.dryRun).
		Msg("starting snapshot cycle")

	volumes, err := o.discoverVolumes(ctx, report)
	if err != nil {
		report.Success = false
		return o.finishCycle(ctx, report), err
	}

	if len(volumes) == 0 {
		o.logger.WithContext(ctx).Info().Msg("no volumes found")
		return o.finishCycle(ctx, report), nil
	}

	// Each volume runs create then cleanup before the next volume starts.
	// The cutoff comes from the run-level now, so a snapshot created this
	// run can never qualify for this run's deletions.
	for _, volume := range volumes {
		o.createSnapshot(ctx, volume, report)
		o.cleanupSnapshots(ctx, volume, now, report)
	}

	o.buildMessage(report)
	o.notify(ctx, report)

	return o.finishCycle(ctx, report), nil
}

func (o *Orchestrator) discoverVolumes(ctx context.Context, report *types.RunReport) ([]types.Volume, error) {
	o.logger.LogPhaseStart(ctx, report.RunID, string(types.PhaseDiscover))

	volumes, err := o.inventory.ListTaggedVolumes(ctx, o.filter)
	if err != nil {
		o.logger.WithContext(ctx).Error().Err(err).Msg("volume discovery failed")
		o.journalError(report.RunID, journal.EntryFailed, types.PhaseDiscover, "", nil, err)
		return nil, &DiscoveryError{Err: err}
	}

	for _, volume := range volumes {
		report.Volumes = append(report.Volumes, volume.ID)
		o.journalAppend(report.RunID, journal.EntryObserved, types.PhaseDiscover, volume.ID, volume)
	}

	telemetry.RecordVolumesDiscovered(ctx, len(volumes))
	o.logger.WithContext(ctx).Info().
		Int("count", len(volumes)).
		Msg("discovered tagged volumes")

	return volumes, nil
}

func (o *Orchestrator) createSnapshot(ctx context.Context, volume types.Volume, report *types.RunReport) {
	description := fmt.Sprintf("Automated snapshot for %s", volume.ID)

	if o.dryRun {
		report.PlannedCreates = append(report.PlannedCreates, volume.ID)
		o.journalAppend(report.RunID, journal.EntrySkipped, types.PhaseCreate, volume.ID,
			map[string]string{"reason": "dry run"})
		return
	}

	o.journalAppend(report.RunID, journal.EntryExecuting, types.PhaseCreate, volume.ID, nil)

	snapshotID, err := o.inventory.CreateSnapshot(ctx, volume.ID, description, volume.Tags)
	if err != nil {
		o.recordUnitError(ctx, report, types.PhaseCreate, volume.ID, err)
		return
	}

	report.Created = append(report.Created, snapshotID)
	telemetry.RecordSnapshotCreated(ctx, volume.ID)
	o.journalAppend(report.RunID, journal.EntryExecuted, types.PhaseCreate, snapshotID,
		map[string]string{"volume_id": volume.ID})

	if o.catalog != nil {
		created := types.Snapshot{
			ID:          snapshotID,
			VolumeID:    volume.ID,
			State:       "pending",
			Description: description,
			StartTime:   report.Started,
			Tags:        volume.Tags,
		}
		if _, err := o.catalog.RecordObservation(created); err != nil {
			o.logger.LogCatalogError(ctx, "record_created", err)
		}
	}

	o.logger.WithContext(ctx).Info().
		Str("volume_id", volume.ID).
		Str("snapshot_id", snapshotID).
		Msg("snapshot created")
}

func (o *Orchestrator) cleanupSnapshots(ctx context.Context, volume types.Volume, now time.Time, report *types.RunReport) {
	snapshots, err := o.inventory.ListVolumeSnapshots(ctx, volume.ID, o.filter)
	if err != nil {
		o.recordUnitError(ctx, report, types.PhaseCleanup, volume.ID, err)
		return
	}

	if o.catalog != nil && len(snapshots) > 0 {
		if _, err := o.catalog.RecordObservationBatch(snapshots); err != nil {
			o.logger.LogCatalogError(ctx, "record_observations", err)
		}
	}

	eligible := policy.Eligible(snapshots, o.filter, o.retentionDays, now)
	if len(eligible) == 0 {
		return
	}

	o.journalAppend(report.RunID, journal.EntryDecided, types.PhaseCleanup, volume.ID,
		map[string]interface{}{"eligible": eligible})

	byID := make(map[string]types.Snapshot, len(snapshots))
	for _, snapshot := range snapshots {
		byID[snapshot.ID] = snapshot
	}

	for _, snapshotID := range eligible {
		if o.held(ctx, byID[snapshotID], now, report) {
			continue
		}
		o.deleteSnapshot(ctx, volume.ID, snapshotID, report)
	}
}

// held asks the deletion guard about one candidate
func (o *Orchestrator) held(ctx context.Context, snapshot types.Snapshot, now time.Time, report *types.RunReport) bool {
	if o.guard == nil || o.guard.Empty() {
		return false
	}

	hold := o.guard.Check(ctx, policy.GuardInput{
		Snapshot: snapshot,
		AgeDays:  snapshot.Age(now).Hours() / 24,
		Now:      now,
	})
	if !hold.Held {
		return false
	}

	report.Held = append(report.Held, types.HeldSnapshot{
		SnapshotID: snapshot.ID,
		Policy:     hold.Policy,
		Reason:     hold.Reason,
	})
	telemetry.RecordSnapshotHeld(ctx, hold.Policy)
	o.journalAppend(report.RunID, journal.EntrySkipped, types.PhaseCleanup, snapshot.ID,
		map[string]string{"policy": hold.Policy, "reason": hold.Reason})

	return true
}

func (o *Orchestrator) deleteSnapshot(ctx context.Context, volumeID, snapshotID string, report *types.RunReport) {
	if o.dryRun {
		report.PlannedDeletes = append(report.PlannedDeletes, snapshotID)
		o.journalAppend(report.RunID, journal.EntrySkipped, types.PhaseCleanup, snapshotID,
			map[string]string{"reason": "dry run"})
		return
	}

	o.journalAppend(report.RunID, journal.EntryExecuting, types.PhaseCleanup, snapshotID, nil)

	if err := o.inventory.DeleteSnapshot(ctx, snapshotID); err != nil {
		o.recordUnitError(ctx, report, types.PhaseCleanup, snapshotID, err)
		return
	}

	report.Deleted = append(report.Deleted, snapshotID)
	telemetry.RecordSnapshotDeleted(ctx, volumeID)
	o.journalAppend(report.RunID, journal.EntryExecuted, types.PhaseCleanup, snapshotID, nil)

	if o.catalog != nil {
		if _, err := o.catalog.RecordDeletion(snapshotID); err != nil {
			o.logger.LogCatalogError(ctx, "record_deletion", err)
		}
	}

	o.logger.WithContext(ctx).Info().
		Str("snapshot_id", snapshotID).
		Msg("snapshot deleted")
}

func (o *Orchestrator) buildMessage(report *types.RunReport) {
	if len(report.Created) > 0 {
		report.Message = fmt.Sprintf("%d snapshot(s) created: %s",
			len(report.Created), strings.Join(report.Created, ", "))
	} else {
		report.Message = "No snapshots created."
	}
}

// notify publishes the summary. Delivery failure is best effort: logged and
// journaled, never added to the report's unit errors.
func (o *Orchestrator) notify(ctx context.Context, report *types.RunReport) {
	if o.notifier == nil {
		return
	}

	if o.dryRun {
		o.journalAppend(report.RunID, journal.EntrySkipped, types.PhaseNotify, "",
			map[string]string{"reason": "dry run"})
		return
	}

	o.logger.LogPhaseStart(ctx, report.RunID, string(types.PhaseNotify))

	if err := o.notifier.Publish(ctx, notifySubject, report.Message); err != nil {
		o.logger.WithContext(ctx).Error().Err(err).Msg("notification failed")
		o.journalError(report.RunID, journal.EntryFailed, types.PhaseNotify, "", nil, err)
		return
	}

	report.Notified = true
	o.journalAppend(report.RunID, journal.EntryExecuted, types.PhaseNotify, "",
		map[string]string{"message": report.Message})
}

func (o *Orchestrator) recordUnitError(ctx context.Context, report *types.RunReport, phase types.Phase, unitID string, err error) {
	report.Errors = append(report.Errors, types.NewUnitError(phase, unitID, err))
	telemetry.RecordUnitError(ctx, string(phase))
	o.logger.LogUnitFailure(ctx, string(phase), unitID, err)
	o.journalError(report.RunID, journal.EntryFailed, phase, unitID, nil, err)
}

func (o *Orchestrator) finishCycle(ctx context.Context, report *types.RunReport) *types.RunReport {
	report.Finished = o.now().UTC()

	telemetry.RecordRunDuration(ctx, report.Duration().Seconds(), report.Success)

	if o.catalog != nil {
		if err := o.catalog.SaveReport(report); err != nil {
			o.logger.LogCatalogError(ctx, "save_report", err)
		}
		telemetry.SetCatalogRevision(ctx, o.catalog.CurrentRevision())
	}

	o.logger.Info().
		Str("run_id", report.RunID).
		Int("volumes", len(report.Volumes)).
		Int("created", len(report.Created)).
		Int("deleted", len(report.Deleted)).
		Int("held", len(report.Held)).
		Int("errors", len(report.Errors)).
		Dur("duration", report.Duration()).
		Bool("success", report.Success).
		Msg("snapshot cycle complete")

	return report
}

// journalAppend writes if a journal is attached; journal trouble never
// affects the run
func (o *Orchestrator) journalAppend(runID string, entryType journal.EntryType, phase types.Phase, unitID string, data interface{}) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(runID, entryType, string(phase), unitID, data); err != nil {
		o.logger.Warn().Err(err).Msg("journal append failed")
	}
}

func (o *Orchestrator) journalError(runID string, entryType journal.EntryType, phase types.Phase, unitID string, data interface{}, cause error) {
	if o.journal == nil {
		return
	}
	if err := o.journal.AppendError(runID, entryType, string(phase), unitID, data, cause); err != nil {
		o.logger.Warn().Err(err).Msg("journal append failed")
	}
}
