package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// STSAPI is the STS surface used for role assumption.
type STSAPI interface {
	AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// IAMAPI is the IAM surface used for drift detection.
type IAMAPI interface {
	iam.ListRolesAPIClient
	iam.ListAttachedRolePoliciesAPIClient
}

// AssumeRoleSessions implements drift.SessionProvider by assuming a role in
// each account with the base credentials.
type AssumeRoleSessions struct {
	STS         STSAPI
	Base        aws.Config
	SessionName string
	Partition   string

	newIAM func(aws.Config) IAMAPI
}

// NewAssumeRoleSessions builds a provider from a base configuration.
func NewAssumeRoleSessions(base aws.Config) *AssumeRoleSessions {
	return &AssumeRoleSessions{
		STS:         sts.NewFromConfig(base),
		Base:        base,
		SessionName: DefaultSessionName,
	}
}

// ForAccount implements drift.SessionProvider. Failure to resolve the base
// credentials is reported as a retryable credential error; any other
// failure is specific to the account.
func (s *AssumeRoleSessions) ForAccount(ctx context.Context, accountID, roleName string) (drift.AccountIAM, error) {
	if s.Base.Credentials != nil {
		if _, err := s.Base.Credentials.Retrieve(ctx); err != nil {
			return nil, errors.NewUpstreamError(errors.ErrCodeDriftCredential, "resolve base credentials", err)
		}
	}

	sessionName := s.SessionName
	if sessionName == "" {
		sessionName = DefaultSessionName
	}
	out, err := s.STS.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(RoleARN(s.Partition, accountID, roleName)),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Credentials == nil {
		return nil, errors.New(errors.ErrCodeDriftAssumeRole, errors.KindPartialFailure, "assume role returned no credentials")
	}

	cfg := s.Base.Copy()
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		aws.ToString(out.Credentials.AccessKeyId),
		aws.ToString(out.Credentials.SecretAccessKey),
		aws.ToString(out.Credentials.SessionToken),
	))
	return &AccountIAM{API: s.iamFactory()(cfg)}, nil
}

func (s *AssumeRoleSessions) iamFactory() func(aws.Config) IAMAPI {
	if s.newIAM != nil {
		return s.newIAM
	}
	return func(cfg aws.Config) IAMAPI { return iam.NewFromConfig(cfg) }
}

// AccountIAM implements drift.AccountIAM over the IAM paginators.
type AccountIAM struct {
	API IAMAPI
}

// ListRoleNames implements drift.AccountIAM.
func (a *AccountIAM) ListRoleNames(ctx context.Context) ([]string, error) {
	var names []string
	p := iam.NewListRolesPaginator(a.API, &iam.ListRolesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Roles {
			names = append(names, aws.ToString(r.RoleName))
		}
	}
	return names, nil
}

// AttachedPolicies implements drift.AccountIAM.
func (a *AccountIAM) AttachedPolicies(ctx context.Context, role string) ([]string, error) {
	var arns []string
	p := iam.NewListAttachedRolePoliciesPaginator(a.API, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(role)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, pol := range page.AttachedPolicies {
			arns = append(arns, aws.ToString(pol.PolicyArn))
		}
	}
	return arns, nil
}
