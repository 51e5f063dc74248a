package policygate

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// DefaultRules is the rule bundle shipped with the binary.
//
//go:embed policies/*.rego
var DefaultRules embed.FS

// DefaultRulesDir is the directory of DefaultRules holding the modules.
const DefaultRulesDir = "policies"

// RuleConfig is exposed to rule modules as data.iam.config.
type RuleConfig struct {
	OrgAccountPrefix string
	RequiredTags     []string
}

// RegoEvaluator evaluates Query in-process with a prepared OPA query.
type RegoEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewRegoEvaluator compiles every *.rego module under dir in fsys, plus an
// optional data.json there, and prepares Query. A nil fsys selects the
// embedded bundle.
func NewRegoEvaluator(ctx context.Context, fsys fs.FS, dir string, cfg RuleConfig) (*RegoEvaluator, error) {
	if fsys == nil {
		fsys, dir = DefaultRules, DefaultRulesDir
	}
	if dir == "" {
		dir = "."
	}

	modules, data, err := loadRules(fsys, dir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("no rego modules under %s: %w", dir, ErrEvaluatorUnavailable)
	}
	overlayConfig(data, cfg)

	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	opts := []func(*rego.Rego){
		rego.Query(Query),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Store(inmem.NewFromObject(data)),
	}
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, rego.Module(name, modules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePolicyEvaluator, errors.KindInput, "compile policy rules", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &RegoEvaluator{query: prepared}, nil
}

// NewRegoEvaluatorFromDir loads rules from a directory on disk.
func NewRegoEvaluatorFromDir(ctx context.Context, dir string, cfg RuleConfig) (*RegoEvaluator, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("rules dir %s: %w", dir, ErrEvaluatorUnavailable)
	}
	return NewRegoEvaluator(ctx, os.DirFS(dir), ".", cfg)
}

// Name implements Evaluator.
func (e *RegoEvaluator) Name() string { return "rego" }

// Evaluate implements Evaluator.
func (e *RegoEvaluator) Evaluate(ctx context.Context, in Input) (Decision, error) {
	doc, err := in.Document()
	if err != nil {
		return Decision{}, err
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return Decision{}, errors.Wrap(errors.ErrCodePolicyEvaluator, errors.KindUpstreamTransient, "evaluate policy rules", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Deny: []string{}, Warn: []string{}}, nil
	}
	return decisionFromValue(results[0].Expressions[0].Value), nil
}

func loadRules(fsys fs.FS, dir string) (map[string]string, map[string]any, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules dir %s: %w", dir, ErrEvaluatorUnavailable)
	}
	modules := map[string]string{}
	data := map[string]any{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		p := path.Join(dir, name)
		switch {
		case strings.HasSuffix(name, ".rego"):
			src, err := fs.ReadFile(fsys, p)
			if err != nil {
				return nil, nil, err
			}
			modules[p] = string(src)
		case name == "data.json":
			raw, err := fs.ReadFile(fsys, p)
			if err != nil {
				return nil, nil, err
			}
			if err := json.Unmarshal(raw, &data); err != nil {
				return nil, nil, errors.NewFileUnmarshalError(p, "json", err)
			}
		}
	}
	return modules, data, nil
}

// overlayConfig writes non-empty config values to data.iam.config.
func overlayConfig(data map[string]any, cfg RuleConfig) {
	if cfg.OrgAccountPrefix == "" && len(cfg.RequiredTags) == 0 {
		return
	}
	iam, _ := data["iam"].(map[string]any)
	if iam == nil {
		iam = map[string]any{}
		data["iam"] = iam
	}
	conf, _ := iam["config"].(map[string]any)
	if conf == nil {
		conf = map[string]any{}
		iam["config"] = conf
	}
	if cfg.OrgAccountPrefix != "" {
		conf["org_account_prefix"] = cfg.OrgAccountPrefix
	}
	if len(cfg.RequiredTags) > 0 {
		tags := make([]any, len(cfg.RequiredTags))
		for i, t := range cfg.RequiredTags {
			tags[i] = t
		}
		conf["required_tags"] = tags
	}
}

// assertNoForbiddenBuiltins walks compiled modules for calls to builtins
// outside allowedBuiltins, both as nested terms and as expression operators.
func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	forbidden := map[string]struct{}{}
	check := func(name string) {
		if _, builtin := ast.BuiltinMap[name]; !builtin {
			return
		}
		if _, ok := allowedBuiltins[name]; !ok {
			forbidden[name] = struct{}{}
		}
	}
	for _, module := range compiler.Modules {
		ast.WalkExprs(module, func(expr *ast.Expr) bool {
			if expr.IsCall() {
				check(expr.Operator().String())
			}
			return false
		})
		ast.WalkTerms(module, func(term *ast.Term) bool {
			if call, ok := term.Value.(ast.Call); ok && len(call) > 0 && call[0] != nil {
				check(call[0].Value.String())
			}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return errors.New(errors.ErrCodePolicyForbiddenCall, errors.KindInput,
		"forbidden builtins: "+strings.Join(names, ", "))
}
