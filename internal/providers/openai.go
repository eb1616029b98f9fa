package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/arialabs/aria/pkg/protocol"
)

const defaultOpenAIModel = "gpt-4.1-mini"

// OpenAIProvider implements Provider over an OpenAI-compatible Chat
// Completions API, servicing the cloud_budget tier (spec §4.4, DESIGN.md
// domain stack). Grounded on the teacher's openai.go adapter shape, swapped
// to the real SDK per "enrich from the rest of the pack" (manifold depends
// on the same client).
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
	retryConfig  RetryConfig
}

type OpenAIOption func(*openaiOpts)

type openaiOpts struct {
	baseURL string
	model   string
	retry   RetryConfig
}

func WithOpenAIModel(model string) OpenAIOption { return func(o *openaiOpts) { o.model = model } }
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(o *openaiOpts) { o.baseURL = strings.TrimRight(baseURL, "/") }
}

// NewOpenAIProvider creates a new OpenAI (or OpenAI-compatible) provider.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	cfg := openaiOpts{model: defaultOpenAIModel, retry: DefaultRetryConfig()}
	for _, o := range opts {
		o(&cfg)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(clientOpts...), defaultModel: cfg.model, retryConfig: cfg.retry}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := p.buildParams(req)
	resp, err := RetryDo(ctx, p.retryConfig, func() (*openai.ChatCompletion, error) {
		return p.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	return toOpenAIChatResponse(resp), nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	params := p.buildParams(req)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onChunk(StreamChunk{Text: choice.Delta.Content})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	onChunk(StreamChunk{Done: true})
	return toOpenAIChatResponse(&acc.ChatCompletion), nil
}

func (p *OpenAIProvider) buildParams(req ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}
	return params
}

func toOpenAIMessages(req ChatRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case protocol.RoleUser:
			// tool_result blocks become tool-role messages; everything
			// else in a user turn becomes plain user text.
			var text strings.Builder
			for _, b := range m.Content {
				switch b.Type {
				case protocol.BlockText:
					text.WriteString(b.Text)
				case protocol.BlockToolResult:
					out = append(out, openai.ToolMessage(b.Text, b.ToolUseID))
				}
			}
			if text.Len() > 0 {
				out = append(out, openai.UserMessage(text.String()))
			}
		case protocol.RoleAssistant:
			var text strings.Builder
			var calls []openai.ChatCompletionMessageToolCallParam
			for _, b := range m.Content {
				switch b.Type {
				case protocol.BlockText, protocol.BlockThinking:
					text.WriteString(b.Text)
				case protocol.BlockToolUse:
					calls = append(calls, openai.ChatCompletionMessageToolCallParam{
						ID: b.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      b.Name,
							Arguments: string(b.Input),
						},
					})
				}
			}
			msg := openai.ChatCompletionAssistantMessageParam{}
			if text.Len() > 0 {
				msg.Content.OfString = openai.String(text.String())
			}
			msg.ToolCalls = calls
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}

func toOpenAIChatResponse(resp *openai.ChatCompletion) *ChatResponse {
	out := &ChatResponse{
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		StopReason: StopEndTurn,
	}
	msg := protocol.Message{Role: protocol.RoleAssistant}
	if len(resp.Choices) == 0 {
		out.Message = msg
		return out
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, protocol.TextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.Content = append(msg.Content, protocol.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	if len(choice.Message.ToolCalls) > 0 {
		out.StopReason = StopToolUse
	} else if choice.FinishReason == "length" {
		out.StopReason = StopMaxTokens
	}
	out.Message = msg
	return out
}
