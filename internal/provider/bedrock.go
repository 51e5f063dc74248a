package provider

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// DefaultAgentAliasID is used when no alias is configured.
const DefaultAgentAliasID = "default"

// ContextAttribute is the session attribute carrying the context blob.
const ContextAttribute = "context_json"

// AgentStream is the event stream returned by InvokeAgent.
type AgentStream interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

// AgentInvoker starts a Bedrock agent invocation.
type AgentInvoker interface {
	InvokeAgent(ctx context.Context, in *bedrockagentruntime.InvokeAgentInput) (AgentStream, error)
}

type sdkInvoker struct {
	client *bedrockagentruntime.Client
}

func (s sdkInvoker) InvokeAgent(ctx context.Context, in *bedrockagentruntime.InvokeAgentInput) (AgentStream, error) {
	out, err := s.client.InvokeAgent(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// BedrockReviewer invokes a Bedrock agent. The instruction is the input text
// and the context blob travels as a session attribute.
type BedrockReviewer struct {
	Invoker      AgentInvoker
	AgentID      string
	AgentAliasID string
}

// NewBedrockReviewer requires cfg.AgentID.
func NewBedrockReviewer(cfg Config, awsCfg aws.Config) (*BedrockReviewer, error) {
	if cfg.AgentID == "" {
		return nil, errors.New(errors.ErrCodeAgentNotConfigured, errors.KindInput, "bedrock reviewer requires agent_id").
			WithSuggestion("Set agent.agent_id or AGENT_ID")
	}
	alias := cfg.AgentAliasID
	if alias == "" {
		alias = DefaultAgentAliasID
	}
	return &BedrockReviewer{
		Invoker:      sdkInvoker{client: bedrockagentruntime.NewFromConfig(awsCfg)},
		AgentID:      cfg.AgentID,
		AgentAliasID: alias,
	}, nil
}

// Name implements agent.Reviewer.
func (r *BedrockReviewer) Name() string { return NameBedrock }

// Review implements agent.Reviewer. Only chunk events carry text; trace and
// other events are ignored.
func (r *BedrockReviewer) Review(ctx context.Context, req agent.ReviewRequest) (<-chan agent.Chunk, error) {
	stream, err := r.Invoker.InvokeAgent(ctx, &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(r.AgentID),
		AgentAliasId: aws.String(r.AgentAliasID),
		SessionId:    aws.String(req.SessionID),
		InputText:    aws.String(req.Instruction),
		SessionState: &types.SessionState{
			SessionAttributes: map[string]string{ContextAttribute: req.ContextJSON},
		},
	})
	if err != nil {
		return nil, err
	}

	out := make(chan agent.Chunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		for ev := range stream.Events() {
			part, ok := ev.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			if !send(ctx, out, agent.Chunk{Text: strings.ToValidUTF8(string(part.Value.Bytes), "")}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, out, agent.Chunk{Err: err})
		}
	}()
	return out, nil
}

// send delivers c unless ctx ends first.
func send(ctx context.Context, out chan<- agent.Chunk, c agent.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
