package provider

import (
	"context"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIReviewer streams a chat completion.
type OpenAIReviewer struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ agent.Reviewer = (*OpenAIReviewer)(nil)

// NewOpenAIReviewer requires cfg.APIKey. BaseURL overrides the API endpoint.
func NewOpenAIReviewer(cfg Config) (*OpenAIReviewer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeAgentNotConfigured, errors.KindInput, "openai reviewer requires an API key").
			WithSuggestion("Set OPENAI_API_KEY")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIReviewer{client: openai.NewClientWithConfig(oc), model: model, maxTokens: cfg.MaxTokens}, nil
}

// Name implements agent.Reviewer.
func (r *OpenAIReviewer) Name() string { return NameOpenAI }

// Review implements agent.Reviewer.
func (r *OpenAIReviewer) Review(ctx context.Context, req agent.ReviewRequest) (<-chan agent.Chunk, error) {
	creq := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt(req)},
		},
		User:   req.SessionID,
		Stream: true,
	}
	if r.maxTokens > 0 {
		creq.MaxCompletionTokens = r.maxTokens
	}

	stream, err := r.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, err
	}

	out := make(chan agent.Chunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(ctx, out, agent.Chunk{Err: err})
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, out, agent.Chunk{Text: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return out, nil
}
