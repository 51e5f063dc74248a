package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for iamgate. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Pipeline stage metrics
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec

	// Verdict metrics
	Verdicts   *prometheus.CounterVec
	Confidence *prometheus.HistogramVec

	// Gate metrics
	BundleChecks  *prometheus.CounterVec
	PolicyDenies  *prometheus.CounterVec
	LintFindings  *prometheus.CounterVec
	DriftAccounts *prometheus.CounterVec

	// Reviewer metrics
	AgentCalls   *prometheus.CounterVec
	AgentLatency *prometheus.HistogramVec

	AuditFailures *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iamgate_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"stage"},
		),
		StageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_stage_errors_total",
				Help: "Total number of pipeline stage errors",
			},
			[]string{"stage", "kind"},
		),

		Verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_verdicts_total",
				Help: "Total number of consolidated verdicts",
			},
			[]string{"verdict", "source"},
		),
		Confidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iamgate_verdict_confidence",
				Help:    "Confidence of consolidated verdicts",
				Buckets: []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"verdict"},
		),

		BundleChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_bundle_checks_total",
				Help: "Total number of bundle integrity checks by reason",
			},
			[]string{"reason"},
		),
		PolicyDenies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_policy_denies_total",
				Help: "Total number of policy-as-code denials",
			},
			[]string{"source"},
		),
		LintFindings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_lint_findings_total",
				Help: "Total number of lint findings",
			},
			[]string{"severity"},
		),
		DriftAccounts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_drift_account_checks_total",
				Help: "Total number of per-account drift checks by outcome",
			},
			[]string{"outcome"},
		),

		AgentCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_agent_calls_total",
				Help: "Total number of reviewer calls",
			},
			[]string{"provider", "outcome"},
		),
		AgentLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iamgate_agent_latency_seconds",
				Help:    "Reviewer call latency in seconds",
				Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"provider"},
		),

		AuditFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_audit_write_failures_total",
				Help: "Total number of failed audit writes",
			},
			[]string{"backend"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iamgate_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveStage records a stage duration and, when kind is non-empty, an
// error of that kind.
func (m *Metrics) ObserveStage(stage string, d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if kind != "" {
		m.StageErrors.WithLabelValues(stage, kind).Inc()
	}
}

// RecordVerdict counts a consolidated verdict.
func (m *Metrics) RecordVerdict(level, source string, confidence float64) {
	if m == nil {
		return
	}
	if level == "" {
		level = "unknown"
	}
	m.Verdicts.WithLabelValues(level, source).Inc()
	m.Confidence.WithLabelValues(level).Observe(confidence)
}

// RecordBundleCheck counts a bundle check outcome.
func (m *Metrics) RecordBundleCheck(reason string) {
	if m == nil {
		return
	}
	m.BundleChecks.WithLabelValues(reason).Inc()
}

// RecordPolicyDenies adds n denials attributed to source.
func (m *Metrics) RecordPolicyDenies(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PolicyDenies.WithLabelValues(source).Add(float64(n))
}

// RecordLint adds lint findings by severity.
func (m *Metrics) RecordLint(violations, warnings int) {
	if m == nil {
		return
	}
	m.LintFindings.WithLabelValues("violation").Add(float64(violations))
	m.LintFindings.WithLabelValues("warning").Add(float64(warnings))
}

// RecordDriftAccount counts one account check ("ok", "missing", "error").
func (m *Metrics) RecordDriftAccount(outcome string) {
	if m == nil {
		return
	}
	m.DriftAccounts.WithLabelValues(outcome).Inc()
}

// RecordAgentCall counts a reviewer call and its latency.
func (m *Metrics) RecordAgentCall(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.AgentCalls.WithLabelValues(provider, outcome).Inc()
	m.AgentLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAuditFailure counts a failed audit write.
func (m *Metrics) RecordAuditFailure(backend string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(backend).Inc()
}

// RecordError counts an error by code.
func (m *Metrics) RecordError(code, component string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
