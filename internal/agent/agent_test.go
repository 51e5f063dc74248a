package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/verdict"
)

type fakeReviewer struct {
	chunks []Chunk
	err    error
	got    ReviewRequest
}

func (f *fakeReviewer) Name() string { return "fake" }

func (f *fakeReviewer) Review(_ context.Context, req ReviewRequest) (<-chan Chunk, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan Chunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"bare object", `{"verdict":"red"}`, true},
		{"prose around object", "Here is my verdict:\n```json\n{\"verdict\":\"green\"}\n```\nThanks!", true},
		{"nested braces", `x {"a":{"b":1}} y`, true},
		{"empty", "", false},
		{"no braces", "looks fine to me", false},
		{"reversed braces", "} nope {", false},
		{"malformed", `{"verdict": }`, false},
		{"two objects", `{"a":1} and {"b":2}`, false},
		{"stray closing brace", `{"verdict":"red"} }`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ExtractJSONObject(tt.text)
			if tt.ok {
				require.NoError(t, err)
				assert.NotNil(t, obj)
				return
			}
			assert.ErrorIs(t, err, ErrNoJSONObject)
			assert.Nil(t, obj)
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		level      risk.Level
		confidence float64
		drivers    []string
		markdown   string
	}{
		{"defaults", `{}`, risk.Amber, 0.7, []string{}, verdict.DefaultMarkdown},
		{"risk fallback", `{"risk":"RED"}`, risk.Red, 0.7, []string{}, verdict.DefaultMarkdown},
		{"verdict wins over risk", `{"verdict":"Green","risk":"red"}`, risk.Green, 0.7, []string{}, verdict.DefaultMarkdown},
		{"clamped high", `{"verdict":"red","confidence":1.7}`, risk.Red, 1, []string{}, verdict.DefaultMarkdown},
		{"clamped low", `{"verdict":"red","confidence":-2}`, risk.Red, 0, []string{}, verdict.DefaultMarkdown},
		{"string confidence", `{"confidence":"0.4"}`, risk.Amber, 0.4, []string{}, verdict.DefaultMarkdown},
		{"unknown level kept", `{"verdict":"purple"}`, risk.Level("purple"), 0.7, []string{}, verdict.DefaultMarkdown},
		{"full", `{"verdict":"amber","confidence":0.55,"drivers":["wildcard",3],"markdown":"## ok"}`,
			risk.Amber, 0.55, []string{"wildcard", "3"}, "## ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ExtractJSONObject(tt.json)
			require.NoError(t, err)
			v := Normalize(obj)
			assert.Equal(t, tt.level, v.Verdict)
			assert.InDelta(t, tt.confidence, v.Confidence, 1e-9)
			assert.Equal(t, tt.drivers, v.Drivers)
			assert.Equal(t, tt.markdown, v.Markdown)
			assert.Equal(t, verdict.SourceAgent, v.Source)
		})
	}
}

func sampleContext() Context {
	s := plan.NewSummary()
	s.TotalResources = 4
	return Context{
		Repo:    "org/infra",
		SHA:     "deadbeef",
		RunID:   "run-42",
		Summary: s,
		Lint:    lint.Result{Violations: []string{"Action:* detected - use least-privilege explicit actions"}},
		Risk:    risk.Score{Risk: risk.Amber, Confidence: 0.7, Drivers: []string{}},
		Drift:   drift.Report{Status: drift.StatusNone},
	}
}

func TestArbitrateStreamed(t *testing.T) {
	r := &fakeReviewer{chunks: []Chunk{
		{Text: "Analysis complete. "},
		{Text: `{"verdict":"red","confidence":0.8,`},
		{Text: `"drivers":["passrole"],"markdown":"blocked"}`},
	}}
	v, err := NewArbiter(r, nil).Arbitrate(context.Background(), sampleContext())
	require.NoError(t, err)

	assert.Equal(t, risk.Red, v.Verdict)
	assert.Equal(t, 0.8, v.Confidence)
	assert.Equal(t, []string{"passrole"}, v.Drivers)
	assert.Equal(t, "run-42", v.SessionID)
	assert.Equal(t, len("Analysis complete. "+`{"verdict":"red","confidence":0.8,`+`"drivers":["passrole"],"markdown":"blocked"}`)/4, v.TokensEstimated)

	assert.Equal(t, "run-42", r.got.SessionID)
	assert.Equal(t, "Review IAM-related Terraform changes and produce a JSON verdict with fields: "+
		"verdict (green|amber|red), confidence (0..1), drivers (list of strings), markdown (summary). "+
		"Signals: total_plan_resources=4, precomputed_risk=amber, drift=none.", r.got.Instruction)

	var blob map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.got.ContextJSON), &blob))
	assert.Equal(t, "org/infra", blob["repo"])
	assert.Contains(t, blob, "plan_summary")
	assert.Contains(t, blob, "impact")
}

func TestArbitrateGeneratesSessionID(t *testing.T) {
	r := &fakeReviewer{chunks: []Chunk{{Text: `{"verdict":"green"}`}}}
	c := sampleContext()
	c.RunID = ""
	v, err := NewArbiter(r, nil).Arbitrate(context.Background(), c)
	require.NoError(t, err)
	assert.NotEmpty(t, v.SessionID)
	assert.Equal(t, len(`{"verdict":"green"}`)/4, v.TokensEstimated)
}

func TestArbitrateFailures(t *testing.T) {
	tests := []struct {
		name      string
		reviewer  Reviewer
		code      gateerrors.ErrorCode
		retryable bool
	}{
		{"no reviewer", nil, gateerrors.ErrCodeAgentNotConfigured, false},
		{"transport", &fakeReviewer{err: errors.New("connection reset")}, gateerrors.ErrCodeAgentTransport, true},
		{"stream error", &fakeReviewer{chunks: []Chunk{{Text: "{"}, {Err: errors.New("stream closed")}}}, gateerrors.ErrCodeAgentTransport, true},
		{"no json", &fakeReviewer{chunks: []Chunk{{Text: "I think this is fine."}}}, gateerrors.ErrCodeAgentNoVerdict, false},
		{"empty output", &fakeReviewer{}, gateerrors.ErrCodeAgentNoVerdict, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArbiter(nil, nil)
			if tt.reviewer != nil {
				a.Reviewer = tt.reviewer
			}
			v, err := a.Arbitrate(context.Background(), sampleContext())
			require.Error(t, err)
			assert.Equal(t, verdict.Verdict{}, v)
			assert.Equal(t, gateerrors.KindArbitrationFailure, gateerrors.KindOf(err))
			assert.Equal(t, tt.code, gateerrors.CodeOf(err))
			assert.Equal(t, tt.retryable, gateerrors.IsRetryable(err))
		})
	}
}

func TestArbitrateHonoursCancellation(t *testing.T) {
	stream := make(chan Chunk)
	r := reviewerFunc(func(context.Context, ReviewRequest) (<-chan Chunk, error) { return stream, nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewArbiter(r, nil).Arbitrate(ctx, sampleContext())
	require.Error(t, err)
	assert.Equal(t, gateerrors.ErrCodeAgentTransport, gateerrors.CodeOf(err))
}

type reviewerFunc func(context.Context, ReviewRequest) (<-chan Chunk, error)

func (f reviewerFunc) Name() string { return "func" }
func (f reviewerFunc) Review(ctx context.Context, req ReviewRequest) (<-chan Chunk, error) {
	return f(ctx, req)
}

func TestContextJSONSheds(t *testing.T) {
	c := sampleContext()
	for i := 0; i < 400; i++ {
		c.Summary.IAM.WildcardActions = append(c.Summary.IAM.WildcardActions, plan.WildcardFinding{
			Address:   "aws_iam_policy.p" + strings.Repeat("x", 20),
			Statement: i,
			Reason:    plan.ReasonScalarWildcard,
		})
	}
	full, err := ContextJSON(c, 0)
	require.NoError(t, err)
	require.Greater(t, len(full), 20000)

	capped, err := ContextJSON(c, DefaultMaxContextBytes)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(capped), DefaultMaxContextBytes)

	var blob map[string]any
	require.NoError(t, json.Unmarshal([]byte(capped), &blob))
	assert.Equal(t, []any{"wildcard_actions"}, blob["truncated"])
	assert.Len(t, c.Summary.IAM.WildcardActions, 400, "caller summary untouched")

	tiny, err := ContextJSON(c, 10)
	require.NoError(t, err)
	var shed map[string]any
	require.NoError(t, json.Unmarshal([]byte(tiny), &shed))
	assert.NotContains(t, shed, "plan_summary")
	assert.Equal(t, []any{"wildcard_actions", "plan_summary", "drift_details"}, shed["truncated"])
}

func TestSingle(t *testing.T) {
	var got []Chunk
	for c := range Single("hello", nil) {
		got = append(got, c)
	}
	assert.Equal(t, []Chunk{{Text: "hello"}}, got)
}
