// Package pipeline sequences the gate stages for one pull request run:
// bundle check, plan summary, the deterministic checks, risk scoring,
// optional arbitration, consolidation and the audit write.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/audit"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/iampolicy"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/metrics"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/policygate"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/telemetry"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/verdict"
)

// Stage names used for spans, metrics and log records.
const (
	StageBundle      = "bundle"
	StageSummarize   = "summarize"
	StageLint        = "lint"
	StagePolicy      = "policy"
	StageImpact      = "impact"
	StageDrift       = "drift"
	StageRisk        = "risk"
	StageArbitrate   = "arbitrate"
	StageConsolidate = "consolidate"
	StageAudit       = "audit"
)

// Request is one pipeline invocation.
type Request struct {
	RunID      string `json:"run_id"`
	Repo       string `json:"repo"`
	SHA        string `json:"sha"`
	BundleHash string `json:"bundle_hash"`

	Plan plan.ChangePlan `json:"-"`

	// Policy, Trust and Metadata are raw JSON documents; any may be empty.
	Policy   json.RawMessage `json:"policy,omitempty"`
	Trust    json.RawMessage `json:"trust,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// SpokeAccounts replaces the plan's account set for drift and impact
	// when non-empty.
	SpokeAccounts []string `json:"spoke_accounts,omitempty"`
}

// Outcome carries every stage output. Stages that did not run are nil.
type Outcome struct {
	RunID string `json:"run_id"`
	Repo  string `json:"repo"`
	SHA   string `json:"sha"`

	Bundle  bundle.Result      `json:"bundle"`
	Summary *plan.Summary      `json:"plan_summary,omitempty"`
	Lint    *lint.Result       `json:"lint,omitempty"`
	Policy  *policygate.Result `json:"policy,omitempty"`
	Impact  *impact.Assessment `json:"impact,omitempty"`
	Drift   *drift.Report      `json:"drift,omitempty"`
	Risk    *risk.Score        `json:"risk,omitempty"`

	Agent      *verdict.Verdict `json:"agent,omitempty"`
	AgentError string           `json:"agent_error,omitempty"`

	Verdict    verdict.Verdict `json:"verdict"`
	Conclusion string          `json:"conclusion"`
	Duration   time.Duration   `json:"duration_ns"`
}

// DriftDetector is satisfied by *drift.Detector.
type DriftDetector interface {
	Detect(ctx context.Context, intendedRoles, accounts []string) (drift.Report, error)
}

// Arbiter is satisfied by *agent.Arbiter.
type Arbiter interface {
	Arbitrate(ctx context.Context, c agent.Context) (verdict.Verdict, error)
}

// Pipeline holds the stage collaborators. Arbiter and Audit are optional; a
// nil BundleGate rejects every run.
type Pipeline struct {
	BundleGate *bundle.Gate
	Linter     *lint.Engine
	PolicyGate *policygate.Gate
	Drift      DriftDetector
	Arbiter    Arbiter
	Audit      audit.Writer

	// ArbiterName and AuditBackend label metrics.
	ArbiterName  string
	AuditBackend string

	Weights          risk.Weights
	ImpactThresholds impact.Thresholds

	Logger  *log.Logger
	Metrics *metrics.Metrics

	now func() time.Time
}

// New returns a pipeline with default weights and thresholds.
func New(gate *bundle.Gate, linter *lint.Engine, policy *policygate.Gate, detector DriftDetector, logger *log.Logger) *Pipeline {
	return &Pipeline{
		BundleGate:       gate,
		Linter:           linter,
		PolicyGate:       policy,
		Drift:            detector,
		Weights:          risk.DefaultWeights(),
		ImpactThresholds: impact.DefaultThresholds(),
		Logger:           logger,
	}
}

// Run executes the stages in order. A rejected bundle returns the red
// outcome together with the fail-closed bundle error and runs nothing else.
// A drift failure of kind upstream_transient aborts the run with a
// retryable error. Arbitration and audit failures never fail the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	logger := log.OrDefault(p.Logger).WithRun(req.RunID, req.Repo, req.SHA)
	ctx, span := telemetry.StartRunSpan(ctx, req.RunID, req.Repo, req.SHA)
	defer span.End()

	out := &Outcome{RunID: req.RunID, Repo: req.Repo, SHA: req.SHA}
	logger.Info("pipeline start")

	_ = p.stage(ctx, logger, StageBundle, func(ctx context.Context) error {
		out.Bundle = p.bundleGate(logger).Check(ctx, req.BundleHash)
		p.Metrics.RecordBundleCheck(out.Bundle.Reason)
		return nil
	})
	if !out.Bundle.Approved {
		out.Verdict = verdict.Consolidate(verdict.Inputs{Bundle: out.Bundle})
		p.finish(out, start, logger)
		err := out.Bundle.Err()
		telemetry.RecordError(span, err)
		return out, err
	}

	var summary plan.Summary
	_ = p.stage(ctx, logger, StageSummarize, func(context.Context) error {
		summary = plan.Summarize(req.Plan)
		return nil
	})
	out.Summary = &summary
	accounts := summary.Accounts
	if len(req.SpokeAccounts) > 0 {
		accounts = req.SpokeAccounts
	}

	inputs := iampolicy.DecodeInputs(req.Policy, req.Trust, req.Metadata)
	var (
		lintRes   lint.Result
		policyRes policygate.Result
		impactRes impact.Assessment
		driftRes  drift.Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.stage(gctx, logger, StageLint, func(context.Context) error {
			lintRes = p.linter().Lint(inputs)
			p.Metrics.RecordLint(len(lintRes.Violations), len(lintRes.Warnings))
			return nil
		})
	})
	g.Go(func() error {
		return p.stage(gctx, logger, StagePolicy, func(ctx context.Context) error {
			policyRes = p.policyGate(logger).Evaluate(ctx, policygate.Input{
				Policy:   inputs.RawPolicy,
				Trust:    inputs.RawTrust,
				Metadata: inputs.RawMetadata,
				Summary:  summary,
			})
			p.Metrics.RecordPolicyDenies(policyRes.Source, len(policyRes.Deny))
			return nil
		})
	})
	g.Go(func() error {
		return p.stage(gctx, logger, StageImpact, func(context.Context) error {
			impactRes = impact.Mapper{Thresholds: p.ImpactThresholds}.Assess(summary.Modules, accounts)
			return nil
		})
	})
	g.Go(func() error {
		return p.stage(gctx, logger, StageDrift, func(ctx context.Context) error {
			var err error
			driftRes, err = p.detectDrift(ctx, summary.IAM.RolesAffected, accounts)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Error("pipeline aborted")
		return nil, err
	}
	out.Lint, out.Policy, out.Impact, out.Drift = &lintRes, &policyRes, &impactRes, &driftRes

	var score risk.Score
	_ = p.stage(ctx, logger, StageRisk, func(context.Context) error {
		score = risk.Calculate(risk.Signals{
			LintViolations: len(lintRes.Violations),
			Wildcards:      len(summary.IAM.WildcardActions),
			Drift:          driftRes.Status,
			BlastRadius:    impactRes.BlastRadius,
		}, p.weights())
		return nil
	})
	out.Risk = &score

	var agentErr error
	if p.Arbiter != nil {
		_ = p.stage(ctx, logger, StageArbitrate, func(ctx context.Context) error {
			agentErr = p.arbitrate(ctx, out)
			return agentErr
		})
		if agentErr != nil {
			out.AgentError = agentErr.Error()
			logger.WithError(agentErr).Warn("arbitration failed, using deterministic verdict")
		}
	}

	_ = p.stage(ctx, logger, StageConsolidate, func(context.Context) error {
		out.Verdict = verdict.Consolidate(verdict.Inputs{
			Bundle:   out.Bundle,
			Policy:   policyRes,
			Agent:    out.Agent,
			AgentErr: agentErr,
			Risk:     score,
			Lint:     lintRes,
			Drift:    driftRes,
			Impact:   impactRes,
		})
		return nil
	})

	if p.Audit != nil {
		_ = p.stage(ctx, logger, StageAudit, func(ctx context.Context) error {
			err := p.Audit.Append(ctx, p.record(out))
			if err != nil {
				p.Metrics.RecordAuditFailure(p.AuditBackend)
				logger.WithError(err).Error("audit write failed")
			}
			return err
		})
	}

	p.finish(out, start, logger)
	telemetry.RecordSuccess(span, attribute.String("verdict", string(out.Verdict.Verdict)))
	return out, nil
}

func (p *Pipeline) detectDrift(ctx context.Context, roles, accounts []string) (drift.Report, error) {
	if p.Drift == nil {
		return drift.Report{Status: drift.StatusNone, Reason: drift.ReasonNoAccountsOrRoles}, nil
	}
	report, err := p.Drift.Detect(ctx, roles, accounts)
	for _, res := range report.PerAccount {
		switch {
		case res.Failed():
			p.Metrics.RecordDriftAccount("error")
		case len(res.MissingRoles) > 0:
			p.Metrics.RecordDriftAccount("missing")
		default:
			p.Metrics.RecordDriftAccount("ok")
		}
	}
	if errors.KindOf(err) == errors.KindUpstreamTransient {
		return report, err
	}
	// anything else leaves a partial report
	return report, nil
}

func (p *Pipeline) arbitrate(ctx context.Context, out *Outcome) error {
	started := time.Now()
	v, err := p.Arbiter.Arbitrate(ctx, agent.Context{
		Repo:    out.Repo,
		SHA:     out.SHA,
		RunID:   out.RunID,
		Summary: *out.Summary,
		Lint:    *out.Lint,
		Risk:    *out.Risk,
		Drift:   *out.Drift,
		Impact:  *out.Impact,
	})
	p.Metrics.RecordAgentCall(p.arbiterName(), time.Since(started), err)
	if err != nil {
		return err
	}
	out.Agent = &v
	return nil
}

func (p *Pipeline) record(out *Outcome) audit.Record {
	return audit.Record{
		RunID:           out.RunID,
		CreatedAt:       p.clock()().UTC(),
		Repo:            out.Repo,
		SHA:             out.SHA,
		Verdict:         string(out.Verdict.Verdict),
		Confidence:      out.Verdict.Confidence,
		TokensEstimated: out.Verdict.TokensEstimated,
		Source:          string(out.Verdict.Source),
	}
}

func (p *Pipeline) finish(out *Outcome, start time.Time, logger *log.Logger) {
	out.Conclusion = verdict.CheckConclusion(out.Verdict.Verdict)
	out.Duration = time.Since(start)
	p.Metrics.RecordVerdict(string(out.Verdict.Verdict), string(out.Verdict.Source), out.Verdict.Confidence)
	logger.Info("pipeline done",
		"verdict", out.Verdict.Verdict,
		"confidence", out.Verdict.Confidence,
		"source", out.Verdict.Source,
		"duration_ms", out.Duration.Milliseconds(),
	)
}

// stage wraps fn with a span, a duration metric and start/done log records.
func (p *Pipeline) stage(ctx context.Context, logger *log.Logger, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.StartStageSpan(ctx, name)
	defer span.End()

	logger.Debug("stage start", "stage", name)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)

	kind := ""
	if err != nil {
		kind = string(errors.KindOf(err))
		if kind == "" {
			kind = "unclassified"
		}
		telemetry.RecordError(span, err)
		p.Metrics.RecordError(string(errors.CodeOf(err)), name)
	} else {
		telemetry.RecordSuccess(span)
	}
	p.Metrics.ObserveStage(name, elapsed, kind)
	logger.Debug("stage done", "stage", name, "duration_ms", elapsed.Milliseconds(), "error", err != nil)
	return err
}

func (p *Pipeline) bundleGate(logger *log.Logger) *bundle.Gate {
	if p.BundleGate == nil {
		return bundle.NewGate(nil, logger)
	}
	return p.BundleGate
}

func (p *Pipeline) linter() *lint.Engine {
	if p.Linter == nil {
		return lint.NewEngine("", nil)
	}
	return p.Linter
}

func (p *Pipeline) policyGate(logger *log.Logger) *policygate.Gate {
	if p.PolicyGate == nil {
		return policygate.NewGate(nil, logger)
	}
	return p.PolicyGate
}

func (p *Pipeline) weights() risk.Weights {
	if p.Weights == (risk.Weights{}) {
		return risk.DefaultWeights()
	}
	return p.Weights
}

func (p *Pipeline) arbiterName() string {
	if p.ArbiterName == "" {
		return "agent"
	}
	return p.ArbiterName
}

func (p *Pipeline) clock() func() time.Time {
	if p.now == nil {
		return time.Now
	}
	return p.now
}
