// Package drift compares the IAM roles a plan intends to manage against the
// live roles in each target account.
package drift

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
)

// Defaults for Detector fields left zero.
const (
	DefaultRoleName    = "CrossAccountReadOnlyRole"
	DefaultConcurrency = 8
)

// AccountIAM is read-only IAM access scoped to one account.
type AccountIAM interface {
	ListRoleNames(ctx context.Context) ([]string, error)
	AttachedPolicies(ctx context.Context, role string) ([]string, error)
}

// SessionProvider obtains account-scoped IAM access, typically by assuming
// roleName in accountID.
type SessionProvider interface {
	ForAccount(ctx context.Context, accountID, roleName string) (AccountIAM, error)
}

// Detector fans out one isolated check per account.
type Detector struct {
	Sessions    SessionProvider
	RoleName    string
	Concurrency int
	Logger      *log.Logger
}

// NewDetector returns a detector with default role name and concurrency.
func NewDetector(sessions SessionProvider, logger *log.Logger) *Detector {
	return &Detector{Sessions: sessions, RoleName: DefaultRoleName, Concurrency: DefaultConcurrency, Logger: logger}
}

// Detect checks every account for the intended roles. Detection is skipped,
// without touching the session provider, when either input is empty.
//
// Per-account failures never abort the run: each is recorded in that
// account's result. The returned error is non-nil only when every account
// failed because base credentials could not be resolved, which callers
// should treat as retryable.
func (d *Detector) Detect(ctx context.Context, intendedRoles, accounts []string) (Report, error) {
	roles := uniqueSorted(intendedRoles)
	accts := uniqueSorted(accounts)
	if len(roles) == 0 || len(accts) == 0 {
		return Report{Status: StatusNone, Reason: ReasonNoAccountsOrRoles}, nil
	}
	if d.Sessions == nil {
		return Report{Status: StatusNone}, errors.New(errors.ErrCodeDriftCredential, errors.KindUpstreamTransient,
			"drift detection requires a session provider")
	}

	logger := log.OrDefault(d.Logger)
	results := make([]AccountResult, len(accts))
	codes := make([]errors.ErrorCode, len(accts))

	var g errgroup.Group
	g.SetLimit(d.concurrency())
	for i, acct := range accts {
		i, acct := i, acct
		g.Go(func() error {
			res, err := d.checkAccount(ctx, acct, roles)
			results[i] = res
			if err != nil {
				codes[i] = errors.CodeOf(err)
				logger.WithError(err).Warn("drift check failed for account", "account", acct)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusNone, PerAccount: make(map[string]AccountResult, len(accts))}
	credentialFailures := 0
	for i, acct := range accts {
		report.PerAccount[acct] = results[i]
		if len(results[i].MissingRoles) > 0 {
			report.Status = StatusSuspect
		}
		if codes[i] == errors.ErrCodeDriftCredential {
			credentialFailures++
		}
	}
	report.Summary = summarize(report.PerAccount)

	if credentialFailures == len(accts) {
		return report, errors.New(errors.ErrCodeDriftCredential, errors.KindUpstreamTransient,
			"base credentials unavailable for drift detection")
	}
	return report, nil
}

// checkAccount never panics; a panic in a collaborator becomes the account's
// error.
func (d *Detector) checkAccount(ctx context.Context, account string, roles []string) (res AccountResult, err error) {
	res.MissingRoles = []string{}
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeDriftListRoles, errors.KindPartialFailure, fmt.Sprintf("panic: %v", r))
			res.Error = err.Error()
		}
	}()

	fail := func(e error) (AccountResult, error) {
		res.Error = e.Error()
		return res, e
	}

	iam, err := d.Sessions.ForAccount(ctx, account, d.roleName())
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeDriftCredential {
			return fail(err)
		}
		return fail(errors.Wrap(errors.ErrCodeDriftAssumeRole, errors.KindPartialFailure, "assume role", err))
	}

	live, err := iam.ListRoleNames(ctx)
	if err != nil {
		return fail(errors.Wrap(errors.ErrCodeDriftListRoles, errors.KindPartialFailure, "list roles", err))
	}
	present := make(map[string]struct{}, len(live))
	for _, name := range live {
		present[name] = struct{}{}
	}

	for _, role := range roles {
		if _, ok := present[role]; !ok {
			res.MissingRoles = append(res.MissingRoles, role)
			continue
		}
		arns, err := iam.AttachedPolicies(ctx, role)
		if err != nil {
			return fail(errors.Wrap(errors.ErrCodeDriftAttached, errors.KindPartialFailure,
				"list attached policies for "+role, err))
		}
		if res.Roles == nil {
			res.Roles = map[string]RoleState{}
		}
		sort.Strings(arns)
		res.Roles[role] = RoleState{AttachedPolicies: arns}
	}
	return res, nil
}

func (d *Detector) roleName() string {
	if d.RoleName == "" {
		return DefaultRoleName
	}
	return d.RoleName
}

func (d *Detector) concurrency() int {
	if d.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return d.Concurrency
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
