package cmd

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/audit"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/awsclient"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/config"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/metrics"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/pipeline"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/policygate"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/provider"
)

// approvalBackend reads and writes bundle approvals.
type approvalBackend interface {
	bundle.ApprovalStore
	bundle.ApprovalWriter
}

// components builds collaborators from configuration on first use. The AWS
// configuration is resolved only when a backend needs it.
type components struct {
	cfg    *config.Config
	logger *log.Logger

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error
}

func newComponents(cfg *config.Config, logger *log.Logger) *components {
	return &components{cfg: cfg, logger: log.OrDefault(logger)}
}

func (c *components) awsConfig(ctx context.Context) (aws.Config, error) {
	c.awsOnce.Do(func() {
		c.awsCfg, c.awsErr = awsclient.LoadConfig(ctx, c.cfg.AWS.Region)
	})
	return c.awsCfg, c.awsErr
}

// approvals returns nil when the backend is none, or when DynamoDB has no
// table, so the bundle gate reports no-table.
func (c *components) approvals(ctx context.Context) (approvalBackend, error) {
	bc := c.cfg.Bundle
	switch bc.Backend {
	case config.BackendDynamoDB:
		if bc.Table == "" {
			return nil, nil
		}
		awsCfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return awsclient.NewApprovalTable(awsCfg, bc.Table), nil
	case config.BackendRedis:
		return bundle.NewRedisStore(bc.RedisAddr, bc.RedisPassword, bc.RedisDB), nil
	case config.BackendMemory:
		return bundle.NewMemoryStore(), nil
	case config.BackendNone, "":
		return nil, nil
	}
	return nil, errors.New(errors.ErrCodeConfigInvalid, errors.KindInput, "unknown bundle backend "+bc.Backend)
}

func (c *components) evaluator(ctx context.Context) (policygate.Evaluator, error) {
	pc := c.cfg.Policy
	switch pc.Evaluator {
	case config.EvaluatorRego:
		rc := policygate.RuleConfig{
			OrgAccountPrefix: c.cfg.Lint.OrgAccountPrefix,
			RequiredTags:     c.cfg.Lint.RequiredTags,
		}
		if pc.RulesDir == "" {
			return policygate.NewRegoEvaluator(ctx, nil, "", rc)
		}
		return policygate.NewRegoEvaluatorFromDir(ctx, pc.RulesDir, rc)
	case config.EvaluatorCLI:
		return policygate.NewCLIEvaluator(pc.OPAPath, pc.RulesDir, pc.WASMPath, pc.DataPath), nil
	}
	return nil, nil
}

func (c *components) linter() *lint.Engine {
	return lint.NewEngine(c.cfg.Lint.OrgAccountPrefix, c.cfg.Lint.RequiredTags)
}

// detector uses assumed-role sessions. Without resolvable AWS configuration
// the detector has no session provider: runs with roles and accounts to check
// then fail with a retryable drift credential error, and runs without them
// skip drift.
func (c *components) detector(ctx context.Context) *drift.Detector {
	d := drift.NewDetector(nil, c.logger)
	d.RoleName = c.cfg.Drift.RoleName
	d.Concurrency = c.cfg.Drift.Concurrency

	awsCfg, err := c.awsConfig(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("drift sessions unavailable")
		return d
	}
	sessions := awsclient.NewAssumeRoleSessions(awsCfg)
	sessions.SessionName = c.cfg.Drift.SessionName
	sessions.Partition = c.cfg.AWS.Partition
	d.Sessions = sessions
	return d
}

// arbiter returns nil when the agent is disabled.
func (c *components) arbiter(ctx context.Context) (*agent.Arbiter, error) {
	ac := c.cfg.Agent
	if !ac.Enabled {
		return nil, nil
	}
	var awsCfg aws.Config
	if ac.Name == provider.NameBedrock {
		var err error
		if awsCfg, err = c.awsConfig(ctx); err != nil {
			return nil, err
		}
	}
	reviewer, err := provider.New(ctx, ac.Config, awsCfg)
	if err != nil {
		return nil, err
	}
	arb := agent.NewArbiter(reviewer, c.logger)
	arb.MaxContextBytes = ac.MaxContextBytes
	return arb, nil
}

// auditWriter returns nil when auditing is off.
func (c *components) auditWriter(ctx context.Context) (audit.Writer, error) {
	ac := c.cfg.Audit
	switch ac.Backend {
	case config.BackendDynamoDB:
		awsCfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return awsclient.NewAuditTable(awsCfg, ac.Table), nil
	case config.BackendPostgres:
		return audit.OpenPostgres(ctx, ac.DSN)
	case config.BackendMemory:
		return audit.NewMemoryWriter(), nil
	}
	return nil, nil
}

// fetcher returns nil when AWS configuration cannot be resolved; plan.Load
// then reports s3 sources as unsupported.
func (c *components) fetcher(ctx context.Context) plan.ObjectFetcher {
	awsCfg, err := c.awsConfig(ctx)
	if err != nil {
		return nil
	}
	return awsclient.NewObjectFetcher(awsCfg)
}

// assembly is a built pipeline plus the pieces the server reports on.
type assembly struct {
	Pipeline  *pipeline.Pipeline
	Approvals approvalBackend
	Evaluator policygate.Evaluator
}

func (c *components) pipeline(ctx context.Context, m *metrics.Metrics) (*assembly, error) {
	store, err := c.approvals(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := c.evaluator(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		bundle.NewGate(store, c.logger),
		c.linter(),
		policygate.NewGate(ev, c.logger),
		c.detector(ctx),
		c.logger,
	)
	p.Weights = c.cfg.Risk
	p.ImpactThresholds = c.cfg.Impact
	p.Metrics = m

	arb, err := c.arbiter(ctx)
	if err != nil {
		return nil, err
	}
	if arb != nil {
		p.Arbiter = arb
		p.ArbiterName = c.cfg.Agent.Name
	}

	w, err := c.auditWriter(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("audit disabled")
	} else if w != nil {
		p.Audit = w
		p.AuditBackend = c.cfg.Audit.Backend
	}

	return &assembly{Pipeline: p, Approvals: store, Evaluator: ev}, nil
}
