package health

import (
	"context"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/policygate"
)

// probeHash is looked up by the approval store check. It is never approved.
const probeHash = "healthcheck"

// ApprovalStoreChecker verifies the bundle approval store answers lookups.
// Without a store every review fails closed, so that is unhealthy.
type ApprovalStoreChecker struct {
	Store bundle.ApprovalStore
}

// NewApprovalStoreChecker wraps store, which may be nil.
func NewApprovalStoreChecker(store bundle.ApprovalStore) *ApprovalStoreChecker {
	return &ApprovalStoreChecker{Store: store}
}

func (c *ApprovalStoreChecker) Name() string { return "approval-store" }

func (c *ApprovalStoreChecker) Check(ctx context.Context) *Result {
	if c.Store == nil {
		return Unhealthy("approval store not configured").
			WithDetail("suggestion", "Set bundle.table or TABLE_NAME")
	}
	if _, _, err := c.Store.GetApproval(ctx, probeHash); err != nil {
		return Unhealthy("approval lookup failed").
			WithDetail("error", err.Error()).
			WithDetail("retryable", errors.IsRetryable(err))
	}
	return Healthy("approval store reachable")
}

// EvaluatorChecker reports whether a policy evaluator is loaded. A missing
// evaluator leaves only the wildcard heuristic, which is degraded.
type EvaluatorChecker struct {
	Evaluator policygate.Evaluator
}

// NewEvaluatorChecker wraps ev, which may be nil.
func NewEvaluatorChecker(ev policygate.Evaluator) *EvaluatorChecker {
	return &EvaluatorChecker{Evaluator: ev}
}

func (c *EvaluatorChecker) Name() string { return "policy-evaluator" }

func (c *EvaluatorChecker) Check(context.Context) *Result {
	if c.Evaluator == nil {
		return Degraded("no policy evaluator; heuristic only")
	}
	return Healthy("policy evaluator loaded").WithDetail("evaluator", c.Evaluator.Name())
}

// PingChecker adapts a ping function, such as a Redis or Postgres ping.
type PingChecker struct {
	name string
	ping func(context.Context) error
}

// NewPingChecker returns a checker named name.
func NewPingChecker(name string, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) *Result {
	if err := c.ping(ctx); err != nil {
		return Unhealthy("ping failed").WithDetail("error", err.Error())
	}
	return Healthy("ok")
}
