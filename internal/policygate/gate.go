// Package policygate evaluates IAM change inputs against declarative
// policy-as-code rules and applies a wildcard heuristic when the rules yield
// no denials.
package policygate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

// Query is the rule document every evaluator resolves.
const Query = "data.iam.rules"

// HeuristicDeny is added when the plan carries wildcard actions and the
// evaluator produced no denials.
const HeuristicDeny = "Action:* detected - use least-privilege explicit actions"

// ErrEvaluatorUnavailable reports that the evaluator binary or rule source is
// not installed. It is a supported condition, not a failure of the run.
var ErrEvaluatorUnavailable = errors.New(errors.ErrCodePolicyEvaluatorAbsent, errors.KindInput,
	"policy evaluator unavailable")

// Input is the single document handed to the evaluator.
type Input struct {
	Policy   map[string]any `json:"policy"`
	Trust    map[string]any `json:"trust"`
	Metadata map[string]any `json:"metadata"`
	Summary  plan.Summary   `json:"summary"`
}

// Document returns the input as plain JSON values, with absent documents as
// empty objects.
func (in Input) Document() (map[string]any, error) {
	norm := in
	if norm.Policy == nil {
		norm.Policy = map[string]any{}
	}
	if norm.Trust == nil {
		norm.Trust = map[string]any{}
	}
	if norm.Metadata == nil {
		norm.Metadata = map[string]any{}
	}
	data, err := json.Marshal(norm)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decision is an evaluator's raw answer.
type Decision struct {
	Deny []string `json:"deny"`
	Warn []string `json:"warn"`
}

// Evaluator resolves Query over an Input.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (Decision, error)
}

// Sources of a Result's denials.
const (
	SourceNone      = "none"
	SourceEvaluator = "evaluator"
	SourceHeuristic = "heuristic"
)

// Result is the gate outcome. Allow is true iff Deny is empty.
type Result struct {
	Deny   []string `json:"deny"`
	Warn   []string `json:"warn"`
	Allow  bool     `json:"allow"`
	Source string   `json:"source"`
	// Degraded is set when the evaluator failed or was unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Gate combines an optional Evaluator with the wildcard heuristic.
type Gate struct {
	Evaluator Evaluator
	Logger    *log.Logger
}

// NewGate returns a gate over ev, which may be nil.
func NewGate(ev Evaluator, logger *log.Logger) *Gate {
	return &Gate{Evaluator: ev, Logger: logger}
}

// Evaluate never fails. Evaluator errors surface as an
// "opa_eval_error:<msg>" warning, and the heuristic runs whenever the
// evaluator produced no denials.
func (g *Gate) Evaluate(ctx context.Context, in Input) Result {
	logger := log.OrDefault(g.Logger)
	res := Result{Deny: []string{}, Warn: []string{}, Source: SourceNone}

	if g.Evaluator != nil {
		dec, err := g.safeEvaluate(ctx, in)
		if err != nil {
			res.Degraded = true
			res.Warn = append(res.Warn, "opa_eval_error:"+err.Error())
			logger.WithError(err).Warn("policy evaluator failed, using heuristic", "evaluator", g.Evaluator.Name())
		} else {
			res.Deny = append(res.Deny, dec.Deny...)
			res.Warn = append(res.Warn, dec.Warn...)
			if len(res.Deny) > 0 {
				res.Source = SourceEvaluator
			}
		}
	}

	if len(res.Deny) == 0 {
		if deny := heuristic(in.Summary); len(deny) > 0 {
			res.Deny = deny
			res.Source = SourceHeuristic
		}
	}

	res.Allow = len(res.Deny) == 0
	return res
}

func (g *Gate) safeEvaluate(ctx context.Context, in Input) (dec Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()
	return g.Evaluator.Evaluate(ctx, in)
}

// heuristic only considers wildcard actions recorded in the summary.
func heuristic(s plan.Summary) []string {
	if len(s.IAM.WildcardActions) == 0 {
		return nil
	}
	return []string{HeuristicDeny}
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out
}

// decisionFromValue reads {deny, warn} out of an evaluated rule document.
func decisionFromValue(v any) Decision {
	obj, _ := v.(map[string]any)
	return Decision{Deny: toStrings(obj["deny"]), Warn: toStrings(obj["warn"])}
}
