package policygate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// CLIEvaluator shells out to an opa binary. A compiled WASM bundle is
// preferred over rule source when both are configured.
type CLIEvaluator struct {
	// Binary is the opa executable, looked up on PATH when not absolute.
	Binary string
	// RulesPath is a .rego file or directory.
	RulesPath string
	// WASMBundle is a bundle built with `opa build -t wasm`.
	WASMBundle string
	// DataPath is an optional data.json passed with -d.
	DataPath string

	run func(ctx context.Context, name string, args []string) ([]byte, error)
}

// NewCLIEvaluator returns an evaluator invoking binary.
func NewCLIEvaluator(binary, rulesPath, wasmBundle, dataPath string) *CLIEvaluator {
	if binary == "" {
		binary = "opa"
	}
	return &CLIEvaluator{Binary: binary, RulesPath: rulesPath, WASMBundle: wasmBundle, DataPath: dataPath, run: runCommand}
}

// Name implements Evaluator.
func (c *CLIEvaluator) Name() string { return "opa-cli" }

// Evaluate implements Evaluator. A missing binary or rule source yields
// ErrEvaluatorUnavailable.
func (c *CLIEvaluator) Evaluate(ctx context.Context, in Input) (Decision, error) {
	bin, err := exec.LookPath(c.Binary)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", c.Binary, ErrEvaluatorUnavailable)
	}
	useWASM := exists(c.WASMBundle)
	if !useWASM && !exists(c.RulesPath) {
		return Decision{}, fmt.Errorf("no rule source: %w", ErrEvaluatorUnavailable)
	}

	doc, err := in.Document()
	if err != nil {
		return Decision{}, err
	}
	inputPath, cleanup, err := writeInput(doc)
	if err != nil {
		return Decision{}, err
	}
	defer cleanup()

	out, err := c.runner()(ctx, bin, c.args(useWASM, inputPath))
	if err != nil {
		return Decision{}, errors.NewUpstreamError(errors.ErrCodePolicyEvaluator, "opa eval failed", err)
	}
	return parseEvalOutput(out)
}

func (c *CLIEvaluator) args(useWASM bool, inputPath string) []string {
	args := []string{"eval", "-f", "json"}
	if useWASM {
		args = append(args, "-t", "wasm", "-b", c.WASMBundle)
		if exists(c.DataPath) {
			args = append(args, "-d", c.DataPath)
		}
	} else {
		args = append(args, "-d", c.RulesPath)
		if exists(c.DataPath) {
			args = append(args, "-d", c.DataPath)
		}
	}
	return append(args, "-i", inputPath, Query)
}

func (c *CLIEvaluator) runner() func(context.Context, string, []string) ([]byte, error) {
	if c.run != nil {
		return c.run
	}
	return runCommand
}

type evalOutput struct {
	Result []struct {
		Expressions []struct {
			Value any `json:"value"`
		} `json:"expressions"`
	} `json:"result"`
}

// parseEvalOutput reads result[0].expressions[0].value.{deny,warn}. An empty
// result set means the rule document was undefined.
func parseEvalOutput(out []byte) (Decision, error) {
	var parsed evalOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Decision{}, errors.NewUpstreamError(errors.ErrCodePolicyEvaluator, "decode opa output", err)
	}
	if len(parsed.Result) == 0 || len(parsed.Result[0].Expressions) == 0 {
		return Decision{Deny: []string{}, Warn: []string{}}, nil
	}
	return decisionFromValue(parsed.Result[0].Expressions[0].Value), nil
}

func writeInput(doc map[string]any) (string, func(), error) {
	dir, err := os.MkdirTemp("", "iamgate-opa-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	data, err := json.Marshal(doc)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	p := filepath.Join(dir, "input.json")
	if err := os.WriteFile(p, data, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return p, cleanup, nil
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, err
	}
	return out, nil
}

func exists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
