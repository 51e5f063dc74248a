package config

import (
	"fmt"
	"slices"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/provider"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/telemetry"
)

// Validate checks every section and reports the first problem as a
// CONFIG-001 error prefixed with the section name.
func (c *Config) Validate() error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"bundle", c.Bundle.Validate},
		{"policy", c.Policy.Validate},
		{"drift", c.Drift.Validate},
		{"risk", c.Risk.Validate},
		{"impact", c.validateImpact},
		{"agent", c.Agent.Validate},
		{"audit", c.Audit.Validate},
		{"telemetry", c.validateTelemetry},
	}
	for _, ch := range checks {
		if err := ch.check(); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, errors.KindInput,
				fmt.Sprintf("%s: %v", ch.section, err), err).
				WithSuggestion("Check the configuration file and IAMGATE_* environment variables")
		}
	}
	return nil
}

// Validate validates the bundle section. A DynamoDB backend without a table,
// or backend none, is accepted; the gate then rejects every run.
func (b *BundleConfig) Validate() error {
	switch b.Backend {
	case BackendDynamoDB, BackendMemory, BackendNone:
	case BackendRedis:
		if b.RedisAddr == "" {
			return fmt.Errorf("redis backend requires redis_addr")
		}
	default:
		return fmt.Errorf("invalid backend %q (must be dynamodb, redis, memory or none)", b.Backend)
	}
	if b.RedisDB < 0 {
		return fmt.Errorf("redis_db must be non-negative, got %d", b.RedisDB)
	}
	return nil
}

// Validate validates the policy section.
func (p *PolicyConfig) Validate() error {
	switch p.Evaluator {
	case EvaluatorRego, EvaluatorNone:
	case EvaluatorCLI:
		if p.OPAPath == "" {
			return fmt.Errorf("cli evaluator requires opa_path")
		}
	default:
		return fmt.Errorf("invalid evaluator %q (must be rego, cli or none)", p.Evaluator)
	}
	return nil
}

// Validate validates the drift section.
func (d *DriftConfig) Validate() error {
	if d.RoleName == "" {
		return fmt.Errorf("role_name is required")
	}
	if d.Concurrency < 1 || d.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64, got %d", d.Concurrency)
	}
	return nil
}

// Validate validates the agent section. Provider settings are only checked
// when the agent is enabled.
func (a *AgentConfig) Validate() error {
	if a.MaxContextBytes <= 0 {
		return fmt.Errorf("max_context_bytes must be positive, got %d", a.MaxContextBytes)
	}
	if !a.Enabled {
		return nil
	}
	if !slices.Contains(provider.Names(), a.Name) {
		return fmt.Errorf("unknown provider %q (available: %v)", a.Name, provider.Names())
	}
	if a.Name == provider.NameBedrock && a.AgentID == "" {
		return fmt.Errorf("bedrock provider requires agent_id")
	}
	return nil
}

// Validate validates the audit section.
func (a *AuditConfig) Validate() error {
	switch a.Backend {
	case BackendNone, BackendMemory:
	case BackendDynamoDB:
		if a.Table == "" {
			return fmt.Errorf("dynamodb backend requires table")
		}
	case BackendPostgres:
		if a.DSN == "" {
			return fmt.Errorf("postgres backend requires dsn")
		}
	default:
		return fmt.Errorf("invalid backend %q (must be dynamodb, postgres, memory or none)", a.Backend)
	}
	return nil
}

func (c *Config) validateImpact() error {
	if c.Impact.Small < 0 || c.Impact.Medium < c.Impact.Small {
		return fmt.Errorf("thresholds must satisfy 0 <= small <= medium, got %d/%d", c.Impact.Small, c.Impact.Medium)
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	t := c.Telemetry
	switch t.Exporter {
	case "", telemetry.ExporterNone, telemetry.ExporterStdout:
	case telemetry.ExporterOTLP:
		if t.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires endpoint")
		}
	default:
		return fmt.Errorf("invalid exporter %q (must be otlp, stdout or none)", t.Exporter)
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be within [0,1], got %v", t.SampleRate)
	}
	return nil
}
