package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/verdict"
)

// DefaultMaxContextBytes caps the context blob sent with each review.
const DefaultMaxContextBytes = 20000

// DefaultConfidence applies when the reviewer omits confidence.
const DefaultConfidence = 0.7

const instructionFormat = "Review IAM-related Terraform changes and produce a JSON verdict with fields: " +
	"verdict (green|amber|red), confidence (0..1), drivers (list of strings), markdown (summary). " +
	"Signals: total_plan_resources=%d, precomputed_risk=%s, drift=%s."

// Arbiter runs one review per pipeline run. It never invents a verdict:
// every failure is an ArbitrationFailure and the caller falls back to the
// deterministic score.
type Arbiter struct {
	Reviewer        Reviewer
	MaxContextBytes int
	Logger          *log.Logger
}

// NewArbiter returns an arbiter over r with the default context cap.
func NewArbiter(r Reviewer, logger *log.Logger) *Arbiter {
	return &Arbiter{Reviewer: r, MaxContextBytes: DefaultMaxContextBytes, Logger: logger}
}

// Instruction returns the fixed review instruction for c.
func Instruction(c Context) string {
	return fmt.Sprintf(instructionFormat, c.Summary.TotalResources, c.Risk.Risk, c.Drift.Status)
}

// Arbitrate asks the reviewer for a verdict. The session id is the run id
// when set.
func (a *Arbiter) Arbitrate(ctx context.Context, c Context) (verdict.Verdict, error) {
	logger := log.OrDefault(a.Logger).WithRun(c.RunID, c.Repo, c.SHA)
	if a.Reviewer == nil {
		return verdict.Verdict{}, errors.NewArbitrationError(errors.ErrCodeAgentNotConfigured,
			"no reviewer configured", nil)
	}

	sessionID := c.RunID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	blob, err := ContextJSON(c, a.maxContextBytes())
	if err != nil {
		return verdict.Verdict{}, errors.NewArbitrationError(errors.ErrCodeAgentNoVerdict, "encode review context", err)
	}

	logger.Info("agent review start", "reviewer", a.Reviewer.Name(), "session_id", sessionID, "context_bytes", len(blob))
	stream, err := a.Reviewer.Review(ctx, ReviewRequest{
		SessionID:   sessionID,
		Instruction: Instruction(c),
		ContextJSON: blob,
	})
	if err != nil {
		return verdict.Verdict{}, errors.NewArbitrationError(errors.ErrCodeAgentTransport, "invoke reviewer", err)
	}

	text, err := collect(ctx, stream)
	if err != nil {
		return verdict.Verdict{}, errors.NewArbitrationError(errors.ErrCodeAgentTransport, "read reviewer stream", err)
	}

	obj, err := ExtractJSONObject(text)
	if err != nil {
		logger.Error("no JSON verdict in reviewer output", "output_bytes", len(text))
		return verdict.Verdict{}, errors.NewArbitrationError(errors.ErrCodeAgentNoVerdict,
			"reviewer returned no JSON verdict", err)
	}

	v := Normalize(obj)
	v.SessionID = sessionID
	v.TokensEstimated = max(1, len(text)/4)
	logger.Info("agent review done", "verdict", v.Verdict, "confidence", v.Confidence)
	return v, nil
}

func (a *Arbiter) maxContextBytes() int {
	if a.MaxContextBytes <= 0 {
		return DefaultMaxContextBytes
	}
	return a.MaxContextBytes
}

func collect(ctx context.Context, stream <-chan Chunk) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case ch, ok := <-stream:
			if !ok {
				return b.String(), nil
			}
			if ch.Err != nil {
				return b.String(), ch.Err
			}
			b.WriteString(ch.Text)
		}
	}
}

// Normalize fills reviewer output defaults: verdict falls back to "risk"
// then amber and is lowercased, confidence defaults to 0.7 and is clamped,
// drivers default to empty, markdown to a generic summary.
func Normalize(obj map[string]any) verdict.Verdict {
	level := asString(obj["verdict"])
	if level == "" {
		level = asString(obj["risk"])
	}
	if level == "" {
		level = string(risk.Amber)
	}

	confidence, ok := asFloat(obj["confidence"])
	if !ok {
		confidence = DefaultConfidence
	}

	drivers := []string{}
	if list, ok := obj["drivers"].([]any); ok {
		for _, d := range list {
			if s := asString(d); s != "" {
				drivers = append(drivers, s)
			}
		}
	}

	markdown := asString(obj["markdown"])
	if strings.TrimSpace(markdown) == "" {
		markdown = verdict.DefaultMarkdown
	}

	return verdict.Verdict{
		Verdict:    risk.Level(strings.ToLower(strings.TrimSpace(level))),
		Confidence: verdict.Clamp(confidence),
		Drivers:    drivers,
		Markdown:   markdown,
		Source:     verdict.SourceAgent,
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
	}
	return fmt.Sprint(v)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

type lintDigest struct {
	Violations []string `json:"violations"`
}

type contextBlob struct {
	Repo        string            `json:"repo"`
	SHA         string            `json:"sha"`
	RunID       string            `json:"run_id"`
	PlanSummary *plan.Summary     `json:"plan_summary,omitempty"`
	Lint        lintDigest        `json:"lint"`
	Risk        risk.Score        `json:"risk"`
	Drift       drift.Report      `json:"drift"`
	Impact      impact.Assessment `json:"impact"`
	Truncated   []string          `json:"truncated,omitempty"`
}

// ContextJSON encodes the compact context for c. When the encoding exceeds
// limit, it sheds detail in order: the wildcard list, the plan summary, the
// per-account drift details. The result may still exceed limit.
func ContextJSON(c Context, limit int) (string, error) {
	summary := c.Summary
	violations := c.Lint.Violations
	if violations == nil {
		violations = []string{}
	}
	blob := contextBlob{
		Repo:        c.Repo,
		SHA:         c.SHA,
		RunID:       c.RunID,
		PlanSummary: &summary,
		Lint:        lintDigest{Violations: violations},
		Risk:        c.Risk,
		Drift:       c.Drift,
		Impact:      c.Impact,
	}

	shed := []struct {
		name  string
		apply func(*contextBlob)
	}{
		{"wildcard_actions", func(b *contextBlob) {
			s := *b.PlanSummary
			s.IAM.WildcardActions = []plan.WildcardFinding{}
			b.PlanSummary = &s
		}},
		{"plan_summary", func(b *contextBlob) { b.PlanSummary = nil }},
		{"drift_details", func(b *contextBlob) { b.Drift.PerAccount = nil }},
	}

	data, err := json.Marshal(blob)
	for _, step := range shed {
		if err != nil || limit <= 0 || len(data) <= limit {
			break
		}
		step.apply(&blob)
		blob.Truncated = append(blob.Truncated, step.name)
		data, err = json.Marshal(blob)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
