package policygate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

// fakeBinary creates an executable file so exec.LookPath succeeds.
func fakeBinary(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "opa")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return p
}

func touch(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return p
}

func TestCLIEvaluatorUnavailable(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		c := NewCLIEvaluator(filepath.Join(t.TempDir(), "no-opa"), touch(t, "iam.rego"), "", "")
		_, err := c.Evaluate(context.Background(), Input{})
		assert.True(t, errors.Is(err, ErrEvaluatorUnavailable))
	})

	t.Run("missing rule source", func(t *testing.T) {
		c := NewCLIEvaluator(fakeBinary(t), filepath.Join(t.TempDir(), "iam.rego"), "", "")
		_, err := c.Evaluate(context.Background(), Input{})
		assert.True(t, errors.Is(err, ErrEvaluatorUnavailable))
	})
}

func TestCLIEvaluatorArgs(t *testing.T) {
	rules := touch(t, "iam.rego")
	wasm := touch(t, "bundle.tar.gz")
	data := touch(t, "data.json")

	tests := []struct {
		name string
		c    *CLIEvaluator
		want []string
	}{
		{
			name: "rule source",
			c:    NewCLIEvaluator("opa", rules, "", ""),
			want: []string{"eval", "-f", "json", "-d", rules, "-i", "in.json", Query},
		},
		{
			name: "wasm preferred with data",
			c:    NewCLIEvaluator("opa", rules, wasm, data),
			want: []string{"eval", "-f", "json", "-t", "wasm", "-b", wasm, "-d", data, "-i", "in.json", Query},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.args(exists(tt.c.WASMBundle), "in.json"))
		})
	}
}

func TestCLIEvaluatorEvaluate(t *testing.T) {
	c := NewCLIEvaluator(fakeBinary(t), touch(t, "iam.rego"), "", "")

	var gotArgs []string
	var inputSeen []byte
	c.run = func(_ context.Context, _ string, args []string) ([]byte, error) {
		gotArgs = args
		for i, a := range args {
			if a == "-i" {
				data, err := os.ReadFile(args[i+1])
				require.NoError(t, err)
				inputSeen = data
			}
		}
		return []byte(`{"result":[{"expressions":[{"value":{"deny":["d1"],"warn":["w1","w2"]},"text":"data.iam.rules"}]}]}`), nil
	}

	dec, err := c.Evaluate(context.Background(), Input{Summary: plan.NewSummary()})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, dec.Deny)
	assert.Equal(t, []string{"w1", "w2"}, dec.Warn)
	assert.Equal(t, Query, gotArgs[len(gotArgs)-1])
	assert.Contains(t, string(inputSeen), `"summary"`)
}

func TestCLIEvaluatorProcessFailure(t *testing.T) {
	c := NewCLIEvaluator(fakeBinary(t), touch(t, "iam.rego"), "", "")
	c.run = func(context.Context, string, []string) ([]byte, error) {
		return nil, errors.New("exit status 2")
	}

	_, err := c.Evaluate(context.Background(), Input{})
	require.Error(t, err)
	assert.Equal(t, gateerrors.KindUpstreamTransient, gateerrors.KindOf(err))
	assert.True(t, gateerrors.IsRetryable(err))
}

func TestParseEvalOutput(t *testing.T) {
	dec, err := parseEvalOutput([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, dec.Deny)

	_, err = parseEvalOutput([]byte(`not json`))
	assert.Error(t, err)
}
