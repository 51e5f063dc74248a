package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/audit"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/metrics"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/policygate"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/verdict"
)

const approvedHash = "h1"

const emptyPlan = `{"resource_changes": []}`

const wildcardPlan = `{
  "resource_changes": [
    {
      "type": "aws_iam_policy",
      "address": "module.a.aws_iam_policy.p",
      "change": {"actions": ["create"], "after": {"policy": "{\"Statement\":[{\"Action\":\"*\",\"Effect\":\"Allow\",\"Resource\":\"*\"}]}"}}
    },
    {
      "type": "aws_iam_policy",
      "address": "module.b.aws_iam_policy.q",
      "change": {"actions": ["update"], "after": {"policy": "{\"Statement\":[{\"Action\":\"*\",\"Effect\":\"Allow\",\"Resource\":\"*\"}]}"}}
    }
  ]
}`

// Two violations: an unscoped PassRole and a PutObject without SSE.
const twoViolationPolicy = `{"Statement":[
  {"Effect":"Allow","Action":"iam:PassRole","Resource":"*"},
  {"Effect":"Allow","Action":"s3:PutObject","Resource":"*"}
]}`

type stubDrift struct {
	report drift.Report
	err    error
	calls  int
}

func (s *stubDrift) Detect(context.Context, []string, []string) (drift.Report, error) {
	s.calls++
	return s.report, s.err
}

type stubArbiter struct {
	v     verdict.Verdict
	err   error
	calls int
	got   agent.Context
}

func (s *stubArbiter) Arbitrate(_ context.Context, c agent.Context) (verdict.Verdict, error) {
	s.calls++
	s.got = c
	return s.v, s.err
}

type failingWriter struct{}

func (failingWriter) Append(context.Context, audit.Record) error {
	return gateerrors.NewUpstreamError(gateerrors.ErrCodeAuditWrite, "put item", errors.New("throttled"))
}

func mustPlan(t *testing.T, data string) plan.ChangePlan {
	t.Helper()
	p, err := plan.Parse([]byte(data))
	require.NoError(t, err)
	return p
}

func newPipeline(detector DriftDetector) *Pipeline {
	logger := log.Nop()
	store := bundle.NewMemoryStore(bundle.Approval{Hash: approvedHash, Approved: true})
	return New(
		bundle.NewGate(store, logger),
		lint.NewEngine("", nil),
		policygate.NewGate(nil, logger),
		detector,
		logger,
	)
}

func TestRunEmptyPlan(t *testing.T) {
	p := newPipeline(drift.NewDetector(nil, log.Nop()))

	out, err := p.Run(context.Background(), Request{
		RunID:      "run-1",
		Repo:       "org/infra",
		SHA:        "abc",
		BundleHash: approvedHash,
		Plan:       mustPlan(t, emptyPlan),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.Summary.TotalResources)
	assert.True(t, out.Policy.Allow)
	assert.Empty(t, out.Policy.Deny)
	assert.Equal(t, drift.StatusNone, out.Drift.Status)
	assert.Equal(t, drift.ReasonNoAccountsOrRoles, out.Drift.Reason)
	assert.Equal(t, impact.RadiusSmall, out.Impact.BlastRadius)

	assert.Equal(t, risk.Green, out.Verdict.Verdict)
	assert.Equal(t, verdict.SourceDeterministic, out.Verdict.Source)
	assert.Equal(t, verdict.ConclusionSuccess, out.Conclusion)
	assert.Equal(t, "run-1", out.RunID)
}

func TestRunWildcardPlanIsDenied(t *testing.T) {
	p := newPipeline(drift.NewDetector(nil, log.Nop()))

	out, err := p.Run(context.Background(), Request{BundleHash: approvedHash, Plan: mustPlan(t, wildcardPlan)})
	require.NoError(t, err)

	assert.Len(t, out.Summary.IAM.WildcardActions, 2)
	assert.False(t, out.Policy.Allow)
	assert.Equal(t, policygate.SourceHeuristic, out.Policy.Source)
	assert.Equal(t, risk.Red, out.Verdict.Verdict)
	assert.Equal(t, verdict.BlockConfidence, out.Verdict.Confidence)
	assert.Equal(t, "policy_deny:1", out.Verdict.Drivers[0])
	assert.NotEmpty(t, out.RunID)
}

func TestRunRiskScoring(t *testing.T) {
	detector := &stubDrift{report: drift.Report{Status: drift.StatusSuspect}}
	p := newPipeline(detector)

	out, err := p.Run(context.Background(), Request{
		BundleHash:    approvedHash,
		Plan:          mustPlan(t, wildcardPlan),
		Policy:        []byte(twoViolationPolicy),
		SpokeAccounts: []string{"111111111111", "222222222222"},
	})
	require.NoError(t, err)

	assert.Len(t, out.Lint.Violations, 2)
	assert.Equal(t, impact.RadiusMedium, out.Impact.BlastRadius)
	assert.Equal(t, []string{"111111111111", "222222222222"}, out.Impact.Accounts)
	assert.Equal(t, 1, detector.calls)

	assert.Equal(t, risk.Red, out.Risk.Risk)
	assert.Equal(t, 0.5, out.Risk.Confidence)
	assert.Equal(t, 7, out.Risk.Points)
}

func TestRunBundleRejectionShortCircuits(t *testing.T) {
	detector := &stubDrift{}
	arbiter := &stubArbiter{}
	writer := audit.NewMemoryWriter()

	tests := []struct {
		name   string
		gate   *bundle.Gate
		hash   string
		reason string
	}{
		{"no store", nil, approvedHash, bundle.ReasonNoTable},
		{"no hash", bundle.NewGate(bundle.NewMemoryStore(), nil), "", bundle.ReasonNoHash},
		{"unapproved", bundle.NewGate(bundle.NewMemoryStore(), nil), "other", bundle.ReasonNotApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(detector)
			p.BundleGate = tt.gate
			p.Arbiter = arbiter
			p.Audit = writer

			out, err := p.Run(context.Background(), Request{BundleHash: tt.hash, Plan: mustPlan(t, wildcardPlan)})
			require.Error(t, err)
			assert.Equal(t, gateerrors.ErrCodeBundleNotApproved, gateerrors.CodeOf(err))
			assert.False(t, gateerrors.IsRetryable(err))

			require.NotNil(t, out)
			assert.Equal(t, tt.reason, out.Bundle.Reason)
			assert.Equal(t, risk.Red, out.Verdict.Verdict)
			assert.Equal(t, []string{"bundle:" + tt.reason}, out.Verdict.Drivers)
			assert.Equal(t, verdict.ConclusionFailure, out.Conclusion)
			assert.Nil(t, out.Summary)
			assert.Nil(t, out.Risk)
		})
	}
	assert.Zero(t, detector.calls)
	assert.Zero(t, arbiter.calls)
	assert.Empty(t, writer.Records())
}

func TestRunUsesAgentVerdict(t *testing.T) {
	arbiter := &stubArbiter{v: verdict.Verdict{Verdict: "AMBER", Confidence: 0.8, Drivers: []string{"new role"}}}
	writer := audit.NewMemoryWriter()
	p := newPipeline(drift.NewDetector(nil, log.Nop()))
	p.Arbiter = arbiter
	p.Audit = writer
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	out, err := p.Run(context.Background(), Request{
		RunID: "run-7", Repo: "org/infra", SHA: "abc",
		BundleHash: approvedHash,
		Plan:       mustPlan(t, emptyPlan),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, arbiter.calls)
	assert.Equal(t, "run-7", arbiter.got.RunID)
	assert.Equal(t, risk.Green, arbiter.got.Risk.Risk)

	assert.Equal(t, risk.Amber, out.Verdict.Verdict)
	assert.Equal(t, verdict.SourceAgent, out.Verdict.Source)
	assert.Equal(t, verdict.ConclusionNeutral, out.Conclusion)
	require.NotNil(t, out.Agent)

	records := writer.Records()
	require.Len(t, records, 1)
	assert.Equal(t, audit.Record{
		RunID:      "run-7",
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Repo:       "org/infra",
		SHA:        "abc",
		Verdict:    "amber",
		Confidence: 0.8,
		Source:     "agent",
	}, records[0])
}

func TestRunPolicyDenyOverridesAgent(t *testing.T) {
	arbiter := &stubArbiter{v: verdict.Verdict{Verdict: risk.Green, Confidence: 0.99}}
	p := newPipeline(drift.NewDetector(nil, log.Nop()))
	p.Arbiter = arbiter

	out, err := p.Run(context.Background(), Request{BundleHash: approvedHash, Plan: mustPlan(t, wildcardPlan)})
	require.NoError(t, err)
	assert.Equal(t, risk.Red, out.Verdict.Verdict)
	assert.Equal(t, verdict.SourceDeterministic, out.Verdict.Source)
}

func TestRunAgentFailureFallsBack(t *testing.T) {
	_, m := metrics.NewRegistry()
	arbiter := &stubArbiter{err: gateerrors.NewArbitrationError(gateerrors.ErrCodeAgentNoVerdict, "no json", nil)}
	p := newPipeline(drift.NewDetector(nil, log.Nop()))
	p.Arbiter = arbiter
	p.ArbiterName = "bedrock"
	p.Metrics = m

	out, err := p.Run(context.Background(), Request{BundleHash: approvedHash, Plan: mustPlan(t, emptyPlan)})
	require.NoError(t, err)

	assert.Equal(t, risk.Green, out.Verdict.Verdict)
	assert.Equal(t, verdict.SourceDeterministic, out.Verdict.Source)
	assert.Contains(t, out.Verdict.Drivers, "agent:fallback")
	assert.Contains(t, out.AgentError, "AGENT-003")
	assert.Nil(t, out.Agent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("bedrock", "failure")))
}

func TestRunDriftTransientAborts(t *testing.T) {
	detector := &stubDrift{err: gateerrors.New(gateerrors.ErrCodeDriftCredential, gateerrors.KindUpstreamTransient, "no credentials")}
	arbiter := &stubArbiter{}
	p := newPipeline(detector)
	p.Arbiter = arbiter

	out, err := p.Run(context.Background(), Request{
		BundleHash:    approvedHash,
		Plan:          mustPlan(t, emptyPlan),
		SpokeAccounts: []string{"111111111111"},
	})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, gateerrors.IsRetryable(err))
	assert.Equal(t, gateerrors.ErrCodeDriftCredential, gateerrors.CodeOf(err))
	assert.Zero(t, arbiter.calls)
}

func TestRunDriftPartialFailureContinues(t *testing.T) {
	_, m := metrics.NewRegistry()
	detector := &stubDrift{
		report: drift.Report{
			Status: drift.StatusSuspect,
			PerAccount: map[string]drift.AccountResult{
				"111111111111": {MissingRoles: []string{"AppRole"}},
				"222222222222": {MissingRoles: []string{}, Error: "AccessDenied"},
			},
		},
		err: gateerrors.New(gateerrors.ErrCodeDriftAssumeRole, gateerrors.KindPartialFailure, "one account failed"),
	}
	p := newPipeline(detector)
	p.Metrics = m

	out, err := p.Run(context.Background(), Request{BundleHash: approvedHash, Plan: mustPlan(t, emptyPlan)})
	require.NoError(t, err)
	assert.Equal(t, drift.StatusSuspect, out.Drift.Status)
	assert.Contains(t, out.Risk.Drivers, "drift:suspect")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriftAccounts.WithLabelValues("missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriftAccounts.WithLabelValues("error")))
}

func TestRunAuditFailureIsBestEffort(t *testing.T) {
	_, m := metrics.NewRegistry()
	p := newPipeline(drift.NewDetector(nil, log.Nop()))
	p.Audit = failingWriter{}
	p.AuditBackend = "dynamodb"
	p.Metrics = m

	out, err := p.Run(context.Background(), Request{BundleHash: approvedHash, Plan: mustPlan(t, emptyPlan)})
	require.NoError(t, err)
	assert.Equal(t, risk.Green, out.Verdict.Verdict)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures.WithLabelValues("dynamodb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("green", "deterministic")))
}

func TestZeroValuePipelineFailsClosed(t *testing.T) {
	out, err := (&Pipeline{}).Run(context.Background(), Request{BundleHash: approvedHash})
	require.Error(t, err)
	assert.Equal(t, bundle.ReasonNoTable, out.Bundle.Reason)
}
