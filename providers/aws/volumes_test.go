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

var testFilter = types.TagFilter{Key: "Snapshot", Values: []string{"Yes"}}

func TestListTaggedVolumes(t *testing.T) {
	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	mock := &mockEC2Client{
		DescribeVolumesFunc: func(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			require.Len(t, params.Filters, 1)
			assert.Equal(t, "tag:Snapshot", aws.ToString(params.Filters[0].Name))
			assert.Equal(t, []string{"Yes"}, params.Filters[0].Values)

			return &ec2.DescribeVolumesOutput{
				Volumes: []ec2types.Volume{
					{
						VolumeId:         aws.String("vol-0abc"),
						AvailabilityZone: aws.String("us-east-1a"),
						State:            ec2types.VolumeStateInUse,
						Size:             aws.Int32(100),
						CreateTime:       aws.Time(created),
						Tags: []ec2types.Tag{
							{Key: aws.String("Snapshot"), Value: aws.String("Yes")},
							{Key: aws.String("Name"), Value: aws.String("db-data")},
						},
					},
				},
			}, nil
		},
	}

	p := &Provider{region: "us-east-1", accountID: "123456789012", ec2Client: mock}
	volumes, err := p.ListTaggedVolumes(context.Background(), testFilter)

	require.NoError(t, err)
	require.Len(t, volumes, 1)

	v := volumes[0]
	assert.Equal(t, "vol-0abc", v.ID)
	assert.Equal(t, "us-east-1a", v.AvailabilityZone)
	assert.Equal(t, "in-use", v.State)
	assert.Equal(t, int32(100), v.SizeGiB)
	assert.Equal(t, created, v.CreatedAt)
	assert.Equal(t, "Yes", v.Tags["Snapshot"])
	assert.Equal(t, "db-data", v.Tags.Name())
}

func TestListTaggedVolumes_Pagination(t *testing.T) {
	var calls int
	mock := &mockEC2Client{
		DescribeVolumesFunc: func(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			calls++
			switch calls {
			case 1:
				assert.Nil(t, params.NextToken)
				return &ec2.DescribeVolumesOutput{
					Volumes:   []ec2types.Volume{{VolumeId: aws.String("vol-1")}},
					NextToken: aws.String("page2"),
				}, nil
			case 2:
				assert.Equal(t, "page2", aws.ToString(params.NextToken))
				return &ec2.DescribeVolumesOutput{
					Volumes: []ec2types.Volume{{VolumeId: aws.String("vol-2")}},
				}, nil
			default:
				return nil, errors.New("unexpected call")
			}
		},
	}

	p := &Provider{ec2Client: mock}
	volumes, err := p.ListTaggedVolumes(context.Background(), testFilter)

	require.NoError(t, err)
	require.Len(t, volumes, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "vol-1", volumes[0].ID)
	assert.Equal(t, "vol-2", volumes[1].ID)
}

func TestListTaggedVolumes_Error(t *testing.T) {
	mock := &mockEC2Client{
		DescribeVolumesFunc: func(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	p := &Provider{ec2Client: mock}
	_, err := p.ListTaggedVolumes(context.Background(), testFilter)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
