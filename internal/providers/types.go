// Package providers implements the Provider Router and degradation ladder
// (spec §4.4): provider adapters, health tracking, cost ledger, budget
// guard, and tiered fallback. Grounded on the teacher's
// internal/providers/types.go Provider interface, generalized from
// goclaw's flat Message.Content string to pkg/protocol's tagged
// ContentBlock union so tool_use/tool_result pairing is addressable.
package providers

import (
	"context"

	"github.com/arialabs/aria/pkg/protocol"
)

// Provider is the interface every LLM backend must implement.
type Provider interface {
	// Chat sends messages to the LLM and returns a response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends messages and streams response chunks via onChunk,
	// returning the final complete response after streaming ends.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "openai", "bedrock").
	Name() string
}

// ChatRequest contains the input for a Chat/ChatStream call.
type ChatRequest struct {
	Messages     []protocol.Message
	System       string
	Tools        []ToolDefinition
	Model        string
	Temperature  float64
	MaxTokens    int
	SessionID    string // for cost-ledger attribution
}

// ToolDefinition describes a tool's schema as handed to the provider.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// StopReason classifies why the provider stopped generating, matching
// spec §4.1 step 4's "end_turn" / "tool_use" vocabulary.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// ChatResponse is the result from an LLM call.
type ChatResponse struct {
	Message    protocol.Message
	StopReason StopReason
	Usage      Usage
}

// StreamChunk is a piece of a streaming response (spec §4.1 "chunk" progress event).
type StreamChunk struct {
	Text     string
	Thinking string
	Done     bool
}

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }
