// Package provider implements agent.Reviewer over generative model backends:
// a Bedrock agent, the OpenAI chat API and the Anthropic messages API.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// Backend names.
const (
	NameBedrock   = "bedrock"
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
)

// Config selects and configures one backend.
type Config struct {
	Name         string        `yaml:"provider" json:"provider"`
	AgentID      string        `yaml:"agent_id" json:"agent_id"`
	AgentAliasID string        `yaml:"agent_alias_id" json:"agent_alias_id"`
	Model        string        `yaml:"model" json:"model"`
	APIKey       string        `yaml:"-" json:"-"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// Factory builds a reviewer from configuration. AWS-backed reviewers use
// awsCfg; the others ignore it.
type Factory func(ctx context.Context, cfg Config, awsCfg aws.Config) (agent.Reviewer, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		NameBedrock: func(_ context.Context, cfg Config, awsCfg aws.Config) (agent.Reviewer, error) {
			return NewBedrockReviewer(cfg, awsCfg)
		},
		NameOpenAI: func(_ context.Context, cfg Config, _ aws.Config) (agent.Reviewer, error) {
			return NewOpenAIReviewer(cfg)
		},
		NameAnthropic: func(_ context.Context, cfg Config, _ aws.Config) (agent.Reviewer, error) {
			return NewAnthropicReviewer(cfg)
		},
	}
)

// Register adds or replaces a named factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Names lists registered backends.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the reviewer named by cfg.Name.
func New(ctx context.Context, cfg Config, awsCfg aws.Config) (agent.Reviewer, error) {
	mu.RLock()
	f, ok := factories[cfg.Name]
	mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeAgentNotConfigured, errors.KindInput,
			fmt.Sprintf("unknown reviewer provider %q", cfg.Name)).
			WithSuggestion(fmt.Sprintf("Use one of: %v", Names()))
	}
	return f(ctx, cfg, awsCfg)
}

// prompt renders a request as a single user message for chat backends, which
// have no session attributes to carry the context separately.
func prompt(req agent.ReviewRequest) string {
	return req.Instruction + "\n\nContext (JSON):\n" + req.ContextJSON
}

const systemPrompt = "You are a cloud security reviewer for IAM infrastructure changes. " +
	"Respond with a single JSON object."
