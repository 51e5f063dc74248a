package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStage("lint", 10*time.Millisecond, "")
	m.ObserveStage("drift", time.Second, "UpstreamTransient")
	m.RecordVerdict("red", "deterministic", 0.5)
	m.RecordVerdict("", "agent", 0.7)
	m.RecordBundleCheck("approved")
	m.RecordPolicyDenies("heuristic", 2)
	m.RecordPolicyDenies("heuristic", 0)
	m.RecordLint(3, 1)
	m.RecordDriftAccount("missing")
	m.RecordAgentCall("bedrock", time.Second, nil)
	m.RecordAgentCall("bedrock", time.Second, errors.New("boom"))
	m.RecordAuditFailure("dynamodb")
	m.RecordError("DRIFT-004", "drift")
	m.RecordError("", "drift")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("drift", "UpstreamTransient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("red", "deterministic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("unknown", "agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BundleChecks.WithLabelValues("approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PolicyDenies.WithLabelValues("heuristic")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LintFindings.WithLabelValues("violation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriftAccounts.WithLabelValues("missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("bedrock", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures.WithLabelValues("dynamodb")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Errors))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("lint", time.Second, "x")
		m.RecordVerdict("red", "agent", 1)
		m.RecordBundleCheck("approved")
		m.RecordPolicyDenies("evaluator", 1)
		m.RecordLint(1, 1)
		m.RecordDriftAccount("ok")
		m.RecordAgentCall("openai", time.Second, nil)
		m.RecordAuditFailure("postgres")
		m.RecordError("X", "y")
	})
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordVerdict("green", "agent", 0.9)

	rec := httptest.NewRecorder()
	HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `iamgate_verdicts_total{source="agent",verdict="green"} 1`))
}
