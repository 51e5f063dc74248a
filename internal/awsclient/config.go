// Package awsclient adapts AWS SDK clients to the gate's collaborator
// interfaces: cross-account IAM sessions for drift detection, DynamoDB
// approval and audit tables, and S3 plan objects.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// DefaultSessionName is the STS session name used for drift checks.
const DefaultSessionName = "pr-drift-check"

// LoadConfig resolves the default credential chain for region. An empty
// region defers to the environment.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.NewUpstreamError(errors.ErrCodeDriftCredential, "load AWS configuration", err)
	}
	return cfg, nil
}

// RoleARN returns the ARN of roleName in accountID.
func RoleARN(partition, accountID, roleName string) string {
	if partition == "" {
		partition = "aws"
	}
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", partition, accountID, roleName)
}
