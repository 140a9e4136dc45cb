package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kinos/types"
)

func TestListVolumeSnapshots(t *testing.T) {
	started := time.Date(2026, 2, 1, 3, 0, 0, 0, time.FixedZone("EST", -5*3600))

	mock := &mockEC2Client{
		DescribeSnapshotsFunc: func(_ context.Context, params *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
			assert.Equal(t, []string{"self"}, params.OwnerIds)
			require.Len(t, params.Filters, 2)
			assert.Equal(t, "volume-id", aws.ToString(params.Filters[0].Name))
			assert.Equal(t, []string{"vol-0abc"}, params.Filters[0].Values)
			assert.Equal(t, "tag:Snapshot", aws.ToString(params.Filters[1].Name))

			return &ec2.DescribeSnapshotsOutput{
				Snapshots: []ec2types.Snapshot{
					{
						SnapshotId:  aws.String("snap-1"),
						VolumeId:    aws.String("vol-0abc"),
						State:       ec2types.SnapshotStateCompleted,
						Description: aws.String("Automated snapshot for vol-0abc"),
						StartTime:   aws.Time(started),
						Tags: []ec2types.Tag{
							{Key: aws.String("Snapshot"), Value: aws.String("Yes")},
						},
					},
				},
			}, nil
		},
	}

	p := &Provider{ec2Client: mock}
	snapshots, err := p.ListVolumeSnapshots(context.Background(), "vol-0abc", testFilter)

	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	s := snapshots[0]
	assert.Equal(t, "snap-1", s.ID)
	assert.Equal(t, "vol-0abc", s.VolumeID)
	assert.Equal(t, "completed", s.State)
	assert.Equal(t, "Automated snapshot for vol-0abc", s.Description)
	assert.Equal(t, time.UTC, s.StartTime.Location())
	assert.True(t, s.StartTime.Equal(started))
	assert.Equal(t, "Yes", s.Tags["Snapshot"])
}

func TestListVolumeSnapshots_Error(t *testing.T) {
	mock := &mockEC2Client{
		DescribeSnapshotsFunc: func(_ context.Context, _ *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
			return nil, errors.New("access denied")
		},
	}

	p := &Provider{ec2Client: mock}
	_, err := p.ListVolumeSnapshots(context.Background(), "vol-0abc", testFilter)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vol-0abc")
}

func TestCreateSnapshot(t *testing.T) {
	mock := &mockEC2Client{
		CreateSnapshotFunc: func(_ context.Context, params *ec2.CreateSnapshotInput, _ ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error) {
			assert.Equal(t, "vol-0abc", aws.ToString(params.VolumeId))
			assert.Equal(t, "Automated snapshot for vol-0abc", aws.ToString(params.Description))

			require.Len(t, params.TagSpecifications, 1)
			spec := params.TagSpecifications[0]
			assert.Equal(t, ec2types.ResourceTypeSnapshot, spec.ResourceType)

			tags := make(map[string]string)
			for _, tag := range spec.Tags {
				tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
			}
			assert.Equal(t, map[string]string{"Snapshot": "Yes", "Name": "db-data"}, tags)

			return &ec2.CreateSnapshotOutput{SnapshotId: aws.String("snap-new")}, nil
		},
	}

	p := &Provider{ec2Client: mock}
	id, err := p.CreateSnapshot(context.Background(), "vol-0abc",
		"Automated snapshot for vol-0abc",
		types.Tags{"Snapshot": "Yes", "Name": "db-data"})

	require.NoError(t, err)
	assert.Equal(t, "snap-new", id)
}

func TestCreateSnapshot_NoTags(t *testing.T) {
	mock := &mockEC2Client{
		CreateSnapshotFunc: func(_ context.Context, params *ec2.CreateSnapshotInput, _ ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error) {
			assert.Empty(t, params.TagSpecifications)
			return &ec2.CreateSnapshotOutput{SnapshotId: aws.String("snap-new")}, nil
		},
	}

	p := &Provider{ec2Client: mock}
	_, err := p.CreateSnapshot(context.Background(), "vol-0abc", "desc", nil)

	require.NoError(t, err)
}

func TestCreateSnapshot_Error(t *testing.T) {
	mock := &mockEC2Client{
		CreateSnapshotFunc: func(_ context.Context, _ *ec2.CreateSnapshotInput, _ ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error) {
			return nil, errors.New("snapshot limit exceeded")
		},
	}

	p := &Provider{ec2Client: mock}
	_, err := p.CreateSnapshot(context.Background(), "vol-0abc", "desc", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vol-0abc")
}

func TestDeleteSnapshot(t *testing.T) {
	var deleted string
	mock := &mockEC2Client{
		DeleteSnapshotFunc: func(_ context.Context, params *ec2.DeleteSnapshotInput, _ ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error) {
			deleted = aws.ToString(params.SnapshotId)
			return &ec2.DeleteSnapshotOutput{}, nil
		},
	}

	p := &Provider{ec2Client: mock}
	err := p.DeleteSnapshot(context.Background(), "snap-old")

	require.NoError(t, err)
	assert.Equal(t, "snap-old", deleted)
}

func TestDeleteSnapshot_Error(t *testing.T) {
	mock := &mockEC2Client{
		DeleteSnapshotFunc: func(_ context.Context, _ *ec2.DeleteSnapshotInput, _ ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error) {
			return nil, errors.New("in use")
		},
	}

	p := &Provider{ec2Client: mock}
	err := p.DeleteSnapshot(context.Background(), "snap-old")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "snap-old")
}
