package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/arialabs/aria/pkg/protocol"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// BedrockProvider implements Provider over AWS Bedrock's Converse API,
// servicing the "local"/self-hosted tier as a stand-in for an on-prem model
// endpoint (DESIGN.md domain stack; spec §4.4 tier "local"). Grounded on
// the teacher's provider-adapter shape (small struct, options constructor,
// its own retry ownership), using github.com/aws/aws-sdk-go-v2 (pack:
// goa-ai, manifold, loom).
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	retryConfig  RetryConfig
}

type BedrockOption func(*bedrockOpts)

type bedrockOpts struct {
	region  string
	profile string
	model   string
	retry   RetryConfig
}

func WithBedrockRegion(region string) BedrockOption  { return func(o *bedrockOpts) { o.region = region } }
func WithBedrockProfile(profile string) BedrockOption {
	return func(o *bedrockOpts) { o.profile = profile }
}
func WithBedrockModel(model string) BedrockOption { return func(o *bedrockOpts) { o.model = model } }

// NewBedrockProvider creates a new AWS Bedrock provider, loading the
// default AWS config chain (env vars, shared config/profile, IMDS).
func NewBedrockProvider(ctx context.Context, opts ...BedrockOption) (*BedrockProvider, error) {
	cfg := bedrockOpts{model: defaultBedrockModel, retry: DefaultRetryConfig()}
	for _, o := range opts {
		o(&cfg)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.region))
	}
	if cfg.profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.model,
		retryConfig:  cfg.retry,
	}, nil
}

func (p *BedrockProvider) Name() string         { return "bedrock" }
func (p *BedrockProvider) DefaultModel() string { return p.defaultModel }

func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: toBedrockMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = toBedrockToolConfig(req.Tools)
	}

	out, err := RetryDo(ctx, p.retryConfig, func() (*bedrockruntime.ConverseOutput, error) {
		return p.client.Converse(ctx, input)
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return toBedrockChatResponse(out), nil
}

// ChatStream uses ConverseStream, forwarding text deltas to onChunk.
func (p *BedrockProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: toBedrockMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}

	resp, err := p.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}
	stream := resp.GetStream()
	defer stream.Close()

	var textOut string
	var stopReason StopReason = StopEndTurn
	var usage Usage
	for event := range stream.Events() {
		switch e := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			if d, ok := e.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
				textOut += d.Value
				onChunk(StreamChunk{Text: d.Value})
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			if e.Value.StopReason == brtypes.StopReasonToolUse {
				stopReason = StopToolUse
			}
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if e.Value.Usage != nil {
				usage.InputTokens = int(aws.ToInt32(e.Value.Usage.InputTokens))
				usage.OutputTokens = int(aws.ToInt32(e.Value.Usage.OutputTokens))
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock stream: %w", err)
	}
	onChunk(StreamChunk{Done: true})
	return &ChatResponse{Message: protocol.AssistantText(textOut), StopReason: stopReason, Usage: usage}, nil
}

func toBedrockMessages(msgs []protocol.Message) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		role := brtypes.ConversationRoleUser
		if m.Role == protocol.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		var blocks []brtypes.ContentBlock
		for _, b := range m.Content {
			switch b.Type {
			case protocol.BlockText, protocol.BlockThinking:
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: b.Text})
			case protocol.BlockToolUse:
				var input map[string]interface{}
				_ = json.Unmarshal(b.Input, &input)
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(b.ID),
					Name:      aws.String(b.Name),
					Input:     documentFromMap(input),
				}})
			case protocol.BlockToolResult:
				status := brtypes.ToolResultStatusSuccess
				if b.IsError {
					status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(b.ToolUseID),
					Status:    status,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: b.Text}},
				}})
			}
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out
}

func toBedrockToolConfig(tools []ToolDefinition) *brtypes.ToolConfiguration {
	specs := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpec{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: documentFromMap(t.Parameters)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: specs}
}

// documentFromMap is a thin adapter to Bedrock's document.Interface, used
// for tool-use input/schema payloads which Bedrock represents as an
// arbitrary JSON document rather than a typed struct.
func documentFromMap(m map[string]interface{}) document {
	return document{v: m}
}

// document implements the smithy document.Marshaler/Unmarshaler contract
// the Bedrock SDK expects for its dynamic document fields, backed by plain
// encoding/json — Bedrock's SDK document type has no dependency on any
// other pack library, so this stays on the standard library.
type document struct{ v interface{} }

func (d document) MarshalSmithyDocument() ([]byte, error) { return json.Marshal(d.v) }
func (d *document) UnmarshalSmithyDocument(bytes []byte) error {
	return json.Unmarshal(bytes, &d.v)
}

func toBedrockChatResponse(out *bedrockruntime.ConverseOutput) *ChatResponse {
	resp := &ChatResponse{StopReason: StopEndTurn}
	if out.Usage != nil {
		resp.Usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	if out.StopReason == brtypes.StopReasonToolUse {
		resp.StopReason = StopToolUse
	} else if out.StopReason == brtypes.StopReasonMaxTokens {
		resp.StopReason = StopMaxTokens
	}

	msg := protocol.Message{Role: protocol.RoleAssistant}
	if member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range member.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				msg.Content = append(msg.Content, protocol.TextBlock(b.Value))
			case *brtypes.ContentBlockMemberToolUse:
				input, _ := json.Marshal(b.Value.Input)
				msg.Content = append(msg.Content, protocol.ToolUseBlock(aws.ToString(b.Value.ToolUseId), aws.ToString(b.Value.Name), input))
			}
		}
	}
	resp.Message = msg
	return resp
}
