// Package aws implements the EBS volume inventory and the SNS notification
// sink against the AWS SDK.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Provider drives EC2 volume and snapshot operations for one account/region.
type Provider struct {
	region    string
	accountID string
	awsCfg    aws.Config

	ec2Client EC2API
}

// Config holds provider configuration.
type Config struct {
	Region string
}

// New creates a provider. The owning account is resolved at construction so
// snapshot queries can be scoped to it. An empty region defers to the SDK's
// own resolution chain (env, profile, IMDS).
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	ec2Client := ec2.NewFromConfig(awsCfg)

	accountID, err := getAccountID(ctx, ec2Client)
	if err != nil {
		return nil, fmt.Errorf("get account id: %w", err)
	}

	return &Provider{
		region:    awsCfg.Region,
		accountID: accountID,
		awsCfg:    awsCfg,
		ec2Client: ec2Client,
	}, nil
}

func getAccountID(ctx context.Context, client EC2API) (string, error) {
	output, err := client.DescribeAccountAttributes(ctx, &ec2.DescribeAccountAttributesInput{})
	if err != nil {
		return "", err
	}

	for _, attr := range output.AccountAttributes {
		if aws.ToString(attr.AttributeName) == "account-id" && len(attr.AttributeValues) > 0 {
			return aws.ToString(attr.AttributeValues[0].AttributeValue), nil
		}
	}

	return "unknown", nil
}

// Region returns the managed region
func (p *Provider) Region() string {
	return p.region
}

// AccountID returns the owning account
func (p *Provider) AccountID() string {
	return p.accountID
}

// Notifier builds the SNS sink for a topic from the provider's credentials
func (p *Provider) Notifier(topicARN string) *SNSNotifier {
	return &SNSNotifier{
		client:   sns.NewFromConfig(p.awsCfg),
		topicARN: topicARN,
	}
}
