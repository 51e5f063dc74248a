package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/agent"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// Anthropic defaults.
const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	DefaultAnthropicModel   = "claude-3-5-sonnet-latest"
	anthropicVersion        = "2023-06-01"
)

// AnthropicReviewer streams from the Anthropic messages API.
type AnthropicReviewer struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicReviewer requires cfg.APIKey.
func NewAnthropicReviewer(cfg Config) (*AnthropicReviewer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeAgentNotConfigured, errors.KindInput, "anthropic reviewer requires an API key").
			WithSuggestion("Set ANTHROPIC_API_KEY")
	}
	r := &AnthropicReviewer{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
	if r.baseURL == "" {
		r.baseURL = DefaultAnthropicBaseURL
	}
	if r.model == "" {
		r.model = DefaultAnthropicModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = 4096
	}
	if r.client.Timeout <= 0 {
		r.client.Timeout = 120 * time.Second
	}
	return r, nil
}

// Name implements agent.Reviewer.
func (r *AnthropicReviewer) Name() string { return NameAnthropic }

// Review implements agent.Reviewer.
func (r *AnthropicReviewer) Review(ctx context.Context, req agent.ReviewRequest) (<-chan agent.Chunk, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     r.model,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt(req)}},
		MaxTokens: r.maxTokens,
		Stream:    true,
		Metadata:  map[string]string{"user_id": req.SessionID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", r.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := make(chan agent.Chunk, 16)
	go r.readStream(ctx, resp, out)
	return out, nil
}

// readStream forwards content_block_delta text until message_stop.
func (r *AnthropicReviewer) readStream(ctx context.Context, resp *http.Response, out chan<- agent.Chunk) {
	defer close(out)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if eventType, ok := strings.CutPrefix(line, "event: "); ok {
			if eventType == "message_stop" {
				return
			}
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			send(ctx, out, agent.Chunk{Err: fmt.Errorf("unmarshal event: %w", err)})
			return
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text == "" {
				continue
			}
			if !send(ctx, out, agent.Chunk{Text: ev.Delta.Text}) {
				return
			}
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Type + ": " + ev.Error.Message
			}
			send(ctx, out, agent.Chunk{Err: fmt.Errorf("anthropic %s", msg)})
			return
		case "message_stop":
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, out, agent.Chunk{Err: fmt.Errorf("read stream: %w", err)})
	}
}
