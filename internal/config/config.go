// Package config loads the gate configuration from a YAML file and the
// process environment.
package config

import (
	"time"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/awsclient"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/provider"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/telemetry"
)

// Backend names shared by the bundle and audit sections.
const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

// Policy evaluator names.
const (
	EvaluatorRego = "rego"
	EvaluatorCLI  = "cli"
	EvaluatorNone = "none"
)

// Config is the complete gate configuration.
type Config struct {
	AWS       AWSConfig         `yaml:"aws" json:"aws"`
	Bundle    BundleConfig      `yaml:"bundle" json:"bundle"`
	Lint      LintConfig        `yaml:"lint" json:"lint"`
	Policy    PolicyConfig      `yaml:"policy" json:"policy"`
	Drift     DriftConfig       `yaml:"drift" json:"drift"`
	Risk      risk.Weights      `yaml:"risk" json:"risk"`
	Impact    impact.Thresholds `yaml:"impact" json:"impact"`
	Agent     AgentConfig       `yaml:"agent" json:"agent"`
	Audit     AuditConfig       `yaml:"audit" json:"audit"`
	Log       LogConfig         `yaml:"log" json:"log"`
	Telemetry telemetry.Config  `yaml:"telemetry" json:"telemetry"`
	Server    ServerConfig      `yaml:"server" json:"server"`
}

// AWSConfig holds settings shared by every AWS client.
type AWSConfig struct {
	// Region overrides the SDK's region resolution when set
	Region string `yaml:"region" json:"region"`

	// Partition is used to build spoke role ARNs ("aws", "aws-cn", "aws-us-gov")
	Partition string `yaml:"partition" json:"partition"`
}

// BundleConfig configures the bundle integrity gate.
type BundleConfig struct {
	// Backend is the approval store: "dynamodb", "redis" or "memory"
	Backend string `yaml:"backend" json:"backend"`

	// Table is the DynamoDB approval table
	Table string `yaml:"table" json:"table"`

	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"-" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`

	// Hash is the approved bundle hash this deployment runs with
	Hash string `yaml:"hash" json:"hash"`

	// Targets overrides the files hashed by "bundle hash"
	Targets []string `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// LintConfig configures the deterministic policy linter.
type LintConfig struct {
	// OrgAccountPrefix marks trust principals as internal
	OrgAccountPrefix string `yaml:"org_account_prefix" json:"org_account_prefix"`

	// RequiredTags are the metadata tags every role must carry
	RequiredTags []string `yaml:"required_tags" json:"required_tags"`
}

// PolicyConfig configures the policy-as-code gate.
type PolicyConfig struct {
	// Evaluator is "rego" (embedded OPA), "cli" (opa binary) or "none"
	Evaluator string `yaml:"evaluator" json:"evaluator"`

	// RulesDir replaces the embedded rules when set
	RulesDir string `yaml:"rules_dir" json:"rules_dir"`

	OPAPath  string `yaml:"opa_path" json:"opa_path"`
	WASMPath string `yaml:"wasm_path" json:"wasm_path"`
	DataPath string `yaml:"data_path" json:"data_path"`
}

// DriftConfig configures cross-account drift detection.
type DriftConfig struct {
	RoleName    string `yaml:"role_name" json:"role_name"`
	SessionName string `yaml:"session_name" json:"session_name"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

// AgentConfig configures the optional arbiter.
type AgentConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	provider.Config `yaml:",inline"`

	// MaxContextBytes caps the serialized review context
	MaxContextBytes int `yaml:"max_context_bytes" json:"max_context_bytes"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Backend is "dynamodb", "postgres", "memory" or "none"
	Backend string `yaml:"backend" json:"backend"`

	Table string `yaml:"table" json:"table"`

	// DSN is the Postgres connection string
	DSN string `yaml:"dsn" json:"-"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	AddSource bool   `yaml:"add_source" json:"add_source"`
}

// ServerConfig configures "iamgate serve".
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Default returns the built-in configuration: DynamoDB stores, embedded
// rego rules, no agent and no audit backend.
func Default() *Config {
	return &Config{
		AWS:    AWSConfig{Partition: "aws"},
		Bundle: BundleConfig{Backend: BackendDynamoDB},
		Policy: PolicyConfig{Evaluator: EvaluatorRego, OPAPath: "opa"},
		Drift: DriftConfig{
			RoleName:    drift.DefaultRoleName,
			SessionName: awsclient.DefaultSessionName,
			Concurrency: drift.DefaultConcurrency,
		},
		Risk:   risk.DefaultWeights(),
		Impact: impact.DefaultThresholds(),
		Agent: AgentConfig{
			Config: provider.Config{
				Name:         provider.NameBedrock,
				AgentAliasID: provider.DefaultAgentAliasID,
			},
			MaxContextBytes: agent.DefaultMaxContextBytes,
		},
		Audit:     AuditConfig{Backend: BackendNone},
		Log:       LogConfig{Level: "info", Format: "json"},
		Telemetry: telemetry.DefaultConfig(),
		Server:    ServerConfig{Addr: ":8080", ShutdownTimeout: 30 * time.Second},
	}
}

// LoggerConfig converts the log section into a logger configuration.
func (c LogConfig) LoggerConfig() log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(c.Level)
	cfg.Format = log.ParseFormat(c.Format)
	cfg.AddSource = c.AddSource
	return cfg
}
