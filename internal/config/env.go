package config

import (
	"strconv"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/provider"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/telemetry"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// binding maps environment variables onto a field. The first key that is
// set wins, so IAMGATE_* names take precedence over the legacy ones.
type binding struct {
	keys []string
	set  func(c *Config, v string) error
}

var bindings = []binding{
	{[]string{"IAMGATE_AWS_REGION"}, func(c *Config, v string) error { c.AWS.Region = v; return nil }},
	{[]string{"IAMGATE_AWS_PARTITION"}, func(c *Config, v string) error { c.AWS.Partition = v; return nil }},

	{[]string{"IAMGATE_BUNDLE_BACKEND"}, func(c *Config, v string) error { c.Bundle.Backend = v; return nil }},
	{[]string{"IAMGATE_BUNDLE_TABLE", "TABLE_NAME"}, func(c *Config, v string) error { c.Bundle.Table = v; return nil }},
	{[]string{"IAMGATE_BUNDLE_HASH", "BUNDLE_HASH"}, func(c *Config, v string) error { c.Bundle.Hash = v; return nil }},
	{[]string{"IAMGATE_REDIS_ADDR"}, func(c *Config, v string) error { c.Bundle.RedisAddr = v; return nil }},
	{[]string{"IAMGATE_REDIS_PASSWORD"}, func(c *Config, v string) error { c.Bundle.RedisPassword = v; return nil }},
	{[]string{"IAMGATE_REDIS_DB"}, func(c *Config, v string) error { return setInt(&c.Bundle.RedisDB, "IAMGATE_REDIS_DB", v) }},

	{[]string{"IAMGATE_ORG_ACCOUNT_PREFIX", "ORG_ACCOUNT_PREFIX"}, func(c *Config, v string) error { c.Lint.OrgAccountPrefix = v; return nil }},
	{[]string{"IAMGATE_REQUIRED_TAGS"}, func(c *Config, v string) error { c.Lint.RequiredTags = splitList(v); return nil }},

	{[]string{"IAMGATE_POLICY_EVALUATOR"}, func(c *Config, v string) error { c.Policy.Evaluator = v; return nil }},
	{[]string{"IAMGATE_POLICY_RULES_DIR"}, func(c *Config, v string) error { c.Policy.RulesDir = v; return nil }},
	{[]string{"IAMGATE_OPA_PATH"}, func(c *Config, v string) error { c.Policy.OPAPath = v; return nil }},
	{[]string{"IAMGATE_OPA_WASM"}, func(c *Config, v string) error { c.Policy.WASMPath = v; return nil }},

	{[]string{"IAMGATE_DRIFT_ROLE", "SPOKE_READONLY_ROLE"}, func(c *Config, v string) error { c.Drift.RoleName = v; return nil }},
	{[]string{"IAMGATE_DRIFT_CONCURRENCY"}, func(c *Config, v string) error {
		return setInt(&c.Drift.Concurrency, "IAMGATE_DRIFT_CONCURRENCY", v)
	}},

	{[]string{"IAMGATE_AGENT_ENABLED"}, func(c *Config, v string) error { return setBool(&c.Agent.Enabled, "IAMGATE_AGENT_ENABLED", v) }},
	{[]string{"IAMGATE_AGENT_PROVIDER"}, func(c *Config, v string) error { c.Agent.Name = v; return nil }},
	{[]string{"IAMGATE_AGENT_ID", "AGENT_ID"}, func(c *Config, v string) error { c.Agent.AgentID = v; return nil }},
	{[]string{"IAMGATE_AGENT_ALIAS_ID", "AGENT_ALIAS_ID"}, func(c *Config, v string) error { c.Agent.AgentAliasID = v; return nil }},
	{[]string{"IAMGATE_AGENT_MODEL"}, func(c *Config, v string) error { c.Agent.Model = v; return nil }},
	{[]string{"IAMGATE_AGENT_BASE_URL"}, func(c *Config, v string) error { c.Agent.BaseURL = v; return nil }},

	{[]string{"IAMGATE_AUDIT_BACKEND"}, func(c *Config, v string) error { c.Audit.Backend = v; return nil }},
	{[]string{"IAMGATE_AUDIT_TABLE"}, func(c *Config, v string) error { c.Audit.Table = v; return nil }},
	{[]string{"IAMGATE_AUDIT_DSN"}, func(c *Config, v string) error { c.Audit.DSN = v; return nil }},

	{[]string{"IAMGATE_LOG_LEVEL"}, func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{[]string{"IAMGATE_LOG_FORMAT"}, func(c *Config, v string) error { c.Log.Format = v; return nil }},

	{[]string{"IAMGATE_OTLP_ENDPOINT"}, func(c *Config, v string) error {
		c.Telemetry.Endpoint = v
		if !c.Telemetry.Enabled() {
			c.Telemetry.Exporter = telemetry.ExporterOTLP
		}
		return nil
	}},
	{[]string{"IAMGATE_ENVIRONMENT"}, func(c *Config, v string) error { c.Telemetry.Environment = v; return nil }},

	{[]string{"IAMGATE_SERVER_ADDR"}, func(c *Config, v string) error { c.Server.Addr = v; return nil }},
}

// ApplyEnv overlays environment variables read through lookup. The audit
// table falls back to the bundle table, which is how single-table
// deployments are laid out.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, b := range bindings {
		for _, k := range b.keys {
			v, ok := lookup(k)
			if !ok || v == "" {
				continue
			}
			if err := b.set(c, v); err != nil {
				return err
			}
			break
		}
	}
	if c.Audit.Table == "" {
		c.Audit.Table = c.Bundle.Table
	}
	c.applyAPIKey(lookup)
	return nil
}

func (c *Config) applyAPIKey(lookup LookupFunc) {
	keys := []string{"IAMGATE_AGENT_API_KEY"}
	switch c.Agent.Name {
	case provider.NameOpenAI:
		keys = append(keys, "OPENAI_API_KEY")
	case provider.NameAnthropic:
		keys = append(keys, "ANTHROPIC_API_KEY")
	}
	for _, k := range keys {
		if v, ok := lookup(k); ok && v != "" {
			c.Agent.APIKey = v
			return
		}
	}
}

func setInt(dst *int, key, v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, errors.KindInput, key+" must be an integer", err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, v string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, errors.KindInput, key+" must be a boolean", err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
