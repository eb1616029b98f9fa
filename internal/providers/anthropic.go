package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/arialabs/aria/pkg/protocol"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicProvider implements Provider over the real Anthropic SDK. The
// teacher hand-rolled this adapter over net/http (internal/providers/anthropic.go);
// per the task's "enrich from the rest of the pack" rule this swaps in
// github.com/anthropics/anthropic-sdk-go (the client three other pack repos
// depend on for this exact concern), keeping the teacher's
// options-constructor shape and its own retry/timeout ownership.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	retryConfig  RetryConfig
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*anthropicOpts)

type anthropicOpts struct {
	baseURL string
	model   string
	retry   RetryConfig
}

func WithAnthropicModel(model string) AnthropicOption {
	return func(o *anthropicOpts) { o.model = model }
}

func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(o *anthropicOpts) { o.baseURL = strings.TrimRight(baseURL, "/") }
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	cfg := anthropicOpts{model: defaultAnthropicModel, retry: DefaultRetryConfig()}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(clientOpts...),
		defaultModel: cfg.model,
		retryConfig:  cfg.retry,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := p.buildParams(req)
	msg, err := RetryDo(ctx, p.retryConfig, func() (*anthropic.Message, error) {
		return p.client.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}
	return toChatResponse(msg), nil
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	params := p.buildParams(req)
	stream := p.client.Messages.NewStreaming(ctx, params)

	acc := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream accumulate: %w", err)
		}
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch d := e.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				onChunk(StreamChunk{Text: d.Text})
			case anthropic.ThinkingDelta:
				onChunk(StreamChunk{Thinking: d.Thinking})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	onChunk(StreamChunk{Done: true})
	return toChatResponse(&acc), nil
}

func (p *AnthropicProvider) buildParams(req ChatRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return params
}

func toAnthropicMessages(msgs []protocol.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Content {
			switch b.Type {
			case protocol.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case protocol.BlockToolUse:
				var input any
				_ = json.Unmarshal(b.Input, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case protocol.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			case protocol.BlockThinking:
				// Thinking blocks are assistant-only context; Anthropic
				// replays them as text so the model sees its own prior
				// reasoning without re-triggering extended thinking.
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case protocol.BlockImage:
				if len(b.Data) > 0 {
					blocks = append(blocks, anthropic.NewImageBlockBase64(b.MediaType, base64.StdEncoding.EncodeToString(b.Data)))
				}
			}
		}
		if m.Role == protocol.RoleUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if t.Parameters != nil {
			raw, _ := json.Marshal(t.Parameters)
			_ = json.Unmarshal(raw, &schema)
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, t.Name))
	}
	return out
}

func toChatResponse(msg *anthropic.Message) *ChatResponse {
	resp := &ChatResponse{
		Usage: Usage{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
		},
	}
	out := protocol.Message{Role: protocol.RoleAssistant}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content = append(out.Content, protocol.TextBlock(b.Text))
		case anthropic.ThinkingBlock:
			out.Content = append(out.Content, protocol.ThinkingBlock(b.Thinking))
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(b.Input)
			out.Content = append(out.Content, protocol.ToolUseBlock(b.ID, b.Name, input))
		}
	}
	resp.Message = out

	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.StopReason = StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = StopMaxTokens
	default:
		resp.StopReason = StopEndTurn
	}
	return resp
}
