package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/kinos/types"
)

// ListVolumeSnapshots returns the account's own snapshots of one volume that
// carry the filter's tag. Snapshots shared from other accounts never appear.
func (p *Provider) ListVolumeSnapshots(ctx context.Context, volumeID string, filter types.TagFilter) ([]types.Snapshot, error) {
	filters := []ec2types.Filter{
		{Name: aws.String("volume-id"), Values: []string{volumeID}},
		{Name: aws.String("tag:" + filter.Key), Values: filter.Values},
	}

	var snapshots []types.Snapshot
	var nextToken *string

	for {
		output, err := p.ec2Client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
			OwnerIds:  []string{"self"},
			Filters:   filters,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("describe snapshots for %s: %w", volumeID, err)
		}

		for _, snapshot := range output.Snapshots {
			snapshots = append(snapshots, convertSnapshot(snapshot))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return snapshots, nil
}

func convertSnapshot(snapshot ec2types.Snapshot) types.Snapshot {
	s := types.Snapshot{
		ID:          aws.ToString(snapshot.SnapshotId),
		VolumeID:    aws.ToString(snapshot.VolumeId),
		State:       string(snapshot.State),
		Description: aws.ToString(snapshot.Description),
		Tags:        convertTags(snapshot.Tags),
	}
	if snapshot.StartTime != nil {
		s.StartTime = snapshot.StartTime.UTC()
	}
	return s
}

// CreateSnapshot snapshots a volume. The volume's tags go onto the snapshot
// so it stays visible to future retention queries.
func (p *Provider) CreateSnapshot(ctx context.Context, volumeID, description string, tags types.Tags) (string, error) {
	input := &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
	}
	if len(tags) > 0 {
		input.TagSpecifications = []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeSnapshot,
				Tags:         buildTags(tags),
			},
		}
	}

	output, err := p.ec2Client.CreateSnapshot(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create snapshot for %s: %w", volumeID, err)
	}

	return aws.ToString(output.SnapshotId), nil
}

func buildTags(tags types.Tags) []ec2types.Tag {
	built := make([]ec2types.Tag, 0, len(tags))
	for key, value := range tags {
		built = append(built, ec2types.Tag{Key: aws.String(key), Value: aws.String(value)})
	}
	return built
}

// DeleteSnapshot removes a snapshot.
func (p *Provider) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	_, err := p.ec2Client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{
		SnapshotId: aws.String(snapshotID),
	})
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", snapshotID, err)
	}
	return nil
}
