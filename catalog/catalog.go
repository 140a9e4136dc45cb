package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/yairfalse/kinos/types"
	"go.etcd.io/bbolt"
)

// Bucket names in bbolt
var (
	bucketObservations = []byte("observations")
	bucketReports      = []byte("reports")
	bucketMeta         = []byte("meta")
)

// Catalog is an etcd-style multi-version record of snapshot observations.
// It answers "what did kinos see and do" and feeds no retention decision.
type Catalog struct {
	mu sync.RWMutex

	// In-memory index for fast lookups
	index *btree.BTreeG[*SnapshotState]

	// On-disk storage
	db *bbolt.DB

	// Current revision number
	currentRev int64

	path string
}

// SnapshotState tracks a snapshot's lifecycle in the index
type SnapshotState struct {
	SnapshotID   string
	VolumeID     string
	FirstSeenRev int64
	LastSeenRev  int64
	DeletedRev   int64
	Exists       bool
}

// Observation is one recorded sighting or deletion of a snapshot
type Observation struct {
	Revision int64          `json:"revision"`
	Deleted  bool           `json:"deleted"`
	Snapshot types.Snapshot `json:"snapshot"`
}

// observationRecord is the on-disk value format
type observationRecord struct {
	types.Snapshot
	Tombstone bool      `json:"tombstone,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Open creates or opens a catalog at the given path
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketObservations, bucketReports, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Catalog{
		index: btree.NewG[*SnapshotState](32, func(a, b *SnapshotState) bool {
			return a.SnapshotID < b.SnapshotID
		}),
		db:   db,
		path: path,
	}

	c.loadRevision()

	if err := c.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return c, nil
}

// Close closes the catalog
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordObservation records a single snapshot sighting
func (c *Catalog) RecordObservation(snapshot types.Snapshot) (int64, error) {
	return c.RecordObservationBatch([]types.Snapshot{snapshot})
}

// RecordObservationBatch records multiple sightings at one revision
func (c *Catalog) RecordObservationBatch(snapshots []types.Snapshot) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentRev++
	rev := c.currentRev

	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)

		for _, snapshot := range snapshots {
			key := makeObservationKey(rev, snapshot.ID)
			value, err := json.Marshal(observationRecord{Snapshot: snapshot})
			if err != nil {
				return err
			}

			if err := bucket.Put(key, value); err != nil {
				return err
			}
		}

		metaBucket := tx.Bucket(bucketMeta)
		return metaBucket.Put([]byte("current_revision"), int64ToBytes(rev))
	})

	if err != nil {
		return 0, err
	}

	for _, snapshot := range snapshots {
		c.updateIndex(snapshot.ID, snapshot.VolumeID, rev, true)
	}

	return rev, nil
}

// RecordDeletion records that a snapshot was deleted
func (c *Catalog) RecordDeletion(snapshotID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentRev++
	rev := c.currentRev

	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)

		key := makeObservationKey(rev, snapshotID)
		record := observationRecord{
			Snapshot:  types.Snapshot{ID: snapshotID},
			Tombstone: true,
			Timestamp: time.Now().UTC(),
		}
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}

		if err := bucket.Put(key, value); err != nil {
			return err
		}

		metaBucket := tx.Bucket(bucketMeta)
		return metaBucket.Put([]byte("current_revision"), int64ToBytes(rev))
	})

	if err != nil {
		return 0, err
	}

	state := &SnapshotState{SnapshotID: snapshotID}
	if existing, found := c.index.Get(state); found {
		existing.Exists = false
		existing.DeletedRev = rev
		c.index.ReplaceOrInsert(existing)
	}

	return rev, nil
}

// State returns the current lifecycle state of a snapshot
func (c *Catalog) State(snapshotID string) (*SnapshotState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := &SnapshotState{SnapshotID: snapshotID}
	existing, found := c.index.Get(state)
	if !found {
		return nil, fmt.Errorf("snapshot %s not found", snapshotID)
	}

	return existing, nil
}

// History returns every recorded observation of a snapshot in revision order
func (c *Catalog) History(snapshotID string) ([]Observation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var history []Observation

	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)
		cur := bucket.Cursor()

		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			rev, id := parseObservationKey(k)
			if id != snapshotID {
				continue
			}

			var record observationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}

			history = append(history, Observation{
				Revision: rev,
				Deleted:  record.Tombstone,
				Snapshot: record.Snapshot,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return history, nil
}

// VolumeSnapshots returns the live snapshots recorded for a volume
func (c *Catalog) VolumeSnapshots(volumeID string) ([]*SnapshotState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []*SnapshotState

	c.index.Ascend(func(state *SnapshotState) bool {
		if state.VolumeID == volumeID && state.Exists {
			results = append(results, state)
		}
		return true
	})

	return results, nil
}

// SaveReport persists a run report keyed by its start time
func (c *Catalog) SaveReport(report *types.RunReport) error {
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := []byte(report.Started.UTC().Format(time.RFC3339Nano))

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReports).Put(key, value)
	})
}

// RecentRuns returns the most recent run reports, newest first.
// A limit <= 0 returns all of them.
func (c *Catalog) RecentRuns(limit int) ([]types.RunReport, error) {
	var reports []types.RunReport

	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketReports).Cursor()

		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			if limit > 0 && len(reports) >= limit {
				break
			}

			var report types.RunReport
			if err := json.Unmarshal(v, &report); err != nil {
				continue
			}
			reports = append(reports, report)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return reports, nil
}

// CurrentRevision returns the current revision number
func (c *Catalog) CurrentRevision() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentRev
}

// Compact removes old observation revisions, keeping only recent ones.
// Run reports are never compacted.
func (c *Catalog) Compact(keepRevisions int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.currentRev - keepRevisions
	if cutoff <= 0 {
		return nil
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)
		cur := bucket.Cursor()

		var toDelete [][]byte
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			rev, _ := parseObservationKey(k)
			if rev <= cutoff {
				toDelete = append(toDelete, k)
			}
		}

		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}

// Helper functions

func (c *Catalog) updateIndex(snapshotID, volumeID string, rev int64, exists bool) {
	state := &SnapshotState{SnapshotID: snapshotID}
	existing, found := c.index.Get(state)

	if !found {
		existing = &SnapshotState{
			SnapshotID:   snapshotID,
			VolumeID:     volumeID,
			FirstSeenRev: rev,
			LastSeenRev:  rev,
			Exists:       exists,
		}
	} else {
		existing.LastSeenRev = rev
		existing.Exists = exists
		if volumeID != "" {
			existing.VolumeID = volumeID
		}
		if !exists {
			existing.DeletedRev = rev
		}
	}

	c.index.ReplaceOrInsert(existing)
}

func (c *Catalog) loadRevision() {
	_ = c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte("current_revision"))
		if data != nil {
			c.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

// rebuildIndex replays the observations bucket in revision order so a
// reopened catalog answers State and VolumeSnapshots correctly
func (c *Catalog) rebuildIndex() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)
		cur := bucket.Cursor()

		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			rev, id := parseObservationKey(k)

			var record observationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}

			c.updateIndex(id, record.VolumeID, rev, !record.Tombstone)
		}

		return nil
	})
}

func makeObservationKey(rev int64, snapshotID string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", rev, snapshotID))
}

func parseObservationKey(key []byte) (int64, string) {
	var rev int64
	var id string
	_, _ = fmt.Sscanf(string(key), "%016d:%s", &rev, &id)
	return rev, id
}

func int64ToBytes(n int64) []byte {
	return []byte(fmt.Sprintf("%d", n))
}

func bytesToInt64(b []byte) int64 {
	var n int64
	_, _ = fmt.Sscanf(string(b), "%d", &n)
	return n
}
