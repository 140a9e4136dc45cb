package orchestrator

import (
	"context"
	"fmt"

	"github.com/yairfalse/kinos/types"
)

// Inventory is the provider surface the orchestrator drives
type Inventory interface {
	ListTaggedVolumes(ctx context.Context, filter types.TagFilter) ([]types.Volume, error)
	ListVolumeSnapshots(ctx context.Context, volumeID string, filter types.TagFilter) ([]types.Snapshot, error)
	CreateSnapshot(ctx context.Context, volumeID, description string, tags types.Tags) (string, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// Notifier delivers the run summary
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

// DiscoveryError marks a volume discovery failure. It is fatal to the run:
// nothing is created or deleted after it.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("volume discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
