package types

import "time"

// Tags is the key/value tag set attached to a volume or snapshot
type Tags map[string]string

// Name returns the Name tag, or empty if unset
func (t Tags) Name() string {
	return t["Name"]
}

// Volume is a block-storage unit eligible for snapshotting.
// Immutable for the duration of a run.
type Volume struct {
	ID               string    `json:"id"`
	AvailabilityZone string    `json:"availability_zone"`
	State            string    `json:"state"`
	SizeGiB          int32     `json:"size_gib"`
	Tags             Tags      `json:"tags"`
	CreatedAt        time.Time `json:"created_at"`
}

// Snapshot is a point-in-time copy of a volume, independently
// addressable and deletable
type Snapshot struct {
	ID          string    `json:"id"`
	VolumeID    string    `json:"volume_id"`
	State       string    `json:"state"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	Tags        Tags      `json:"tags"`
}

// Age returns how old the snapshot is relative to now
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.UTC().Sub(s.StartTime.UTC())
}

// TagFilter scopes which volumes and snapshots a run considers:
// a tag key plus the set of acceptable values
type TagFilter struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Matches reports whether the tag set carries the filter key with
// one of the accepted values
func (f TagFilter) Matches(tags Tags) bool {
	value, ok := tags[f.Key]
	if !ok {
		return false
	}
	for _, accepted := range f.Values {
		if value == accepted {
			return true
		}
	}
	return false
}
