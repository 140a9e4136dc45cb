package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/kinos/types"
)

// ListTaggedVolumes returns every volume carrying the filter's tag.
func (p *Provider) ListTaggedVolumes(ctx context.Context, filter types.TagFilter) ([]types.Volume, error) {
	filters := []ec2types.Filter{
		{Name: aws.String("tag:" + filter.Key), Values: filter.Values},
	}

	var volumes []types.Volume
	var nextToken *string

	for {
		output, err := p.ec2Client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			Filters:   filters,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}

		for _, volume := range output.Volumes {
			volumes = append(volumes, convertVolume(volume))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return volumes, nil
}

func convertVolume(volume ec2types.Volume) types.Volume {
	v := types.Volume{
		ID:               aws.ToString(volume.VolumeId),
		AvailabilityZone: aws.ToString(volume.AvailabilityZone),
		State:            string(volume.State),
		SizeGiB:          aws.ToInt32(volume.Size),
		Tags:             convertTags(volume.Tags),
	}
	if volume.CreateTime != nil {
		v.CreatedAt = volume.CreateTime.UTC()
	}
	return v
}

func convertTags(tags []ec2types.Tag) types.Tags {
	if len(tags) == 0 {
		return nil
	}
	converted := make(types.Tags, len(tags))
	for _, tag := range tags {
		converted[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return converted
}
