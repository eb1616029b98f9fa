package agent

import (
	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/pkg/protocol"
)

// ContextManager bounds the message window handed to the provider (spec §2
// Component table "Context Manager"): hot-window truncation once the
// estimated token count exceeds a configured share of the model's context
// window, plus a hard byte cap on individual tool_result content. Grounded
// on the teacher's ContextPruningConfig (internal/config/config.go), which
// the teacher only declared as configuration — this turns it into the
// working trim pass SPEC_FULL.md §4 calls for.
type ContextManager struct {
	cfg           config.ContextPruningConfig
	contextWindow int
}

// DefaultContextPruningConfig matches the teacher's documented defaults:
// keep the last 20 assistant turns hot, soft-trim at 70% of the context
// window, hard-clear at 90%, cap individual tool outputs at 4000 chars.
var DefaultContextPruningConfig = config.ContextPruningConfig{
	Mode:                 "cache-ttl",
	KeepLastAssistants:   20,
	SoftTrimRatio:        0.7,
	HardClearRatio:       0.9,
	ToolOutputCapChars:   4000,
	MinPrunableToolChars: 200,
}

// NewContextManager builds a manager bounding messages to a model with the
// given context window (in tokens). cfg zero-value falls back to
// DefaultContextPruningConfig.
func NewContextManager(cfg config.ContextPruningConfig, contextWindow int) *ContextManager {
	if cfg.KeepLastAssistants == 0 && cfg.SoftTrimRatio == 0 {
		cfg = DefaultContextPruningConfig
	}
	if contextWindow <= 0 {
		contextWindow = 200_000
	}
	return &ContextManager{cfg: cfg, contextWindow: contextWindow}
}

// EstimateTokens very roughly approximates token count as chars/4, the
// same coarse heuristic the teacher's scheduler uses for its adaptive
// throttle before a real usage figure is available.
func EstimateTokens(messages []protocol.Message) int {
	chars := 0
	for _, m := range messages {
		for _, b := range m.Content {
			chars += len(b.Text) + len(b.Input)
		}
	}
	return chars / 4
}

// ClipToolOutput truncates a tool_result's content to the configured cap,
// leaving shorter outputs untouched (spec §4.1 "tool-output clipping").
func (c *ContextManager) ClipToolOutput(content string) string {
	cap := c.cfg.ToolOutputCapChars
	if cap <= 0 || len(content) <= cap {
		return content
	}
	if len(content) < c.cfg.MinPrunableToolChars {
		return content
	}
	return content[:cap] + "\n...[tool output truncated]"
}

// ShouldPrune reports whether messages' estimated token count exceeds the
// soft-trim share of the context window.
func (c *ContextManager) ShouldPrune(messages []protocol.Message) bool {
	if c.cfg.Mode == "off" {
		return false
	}
	threshold := int(float64(c.contextWindow) * c.cfg.SoftTrimRatio)
	return EstimateTokens(messages) > threshold
}

// Prune drops the oldest messages beyond the hot window, keeping at least
// the most recent KeepLastAssistants user/assistant exchange pairs plus any
// leading system/summary message supplied separately. Hard-clear (dropping
// everything but the current turn) kicks in once even the trimmed window
// would still exceed HardClearRatio of the window.
func (c *ContextManager) Prune(messages []protocol.Message) []protocol.Message {
	keep := c.cfg.KeepLastAssistants * 2 // user+assistant per turn
	if keep <= 0 || len(messages) <= keep {
		return messages
	}
	trimmed := messages[len(messages)-keep:]

	hardThreshold := int(float64(c.contextWindow) * c.cfg.HardClearRatio)
	if EstimateTokens(trimmed) > hardThreshold && len(trimmed) > 2 {
		trimmed = trimmed[len(trimmed)-2:]
	}
	return trimmed
}

// ClipToolResults applies ClipToolOutput to every tool_result block across
// messages, returning a new slice (inputs are never mutated in place since
// the same messages may still be the session's live in-memory history).
func (c *ContextManager) ClipToolResults(messages []protocol.Message) []protocol.Message {
	out := make([]protocol.Message, len(messages))
	for i, m := range messages {
		blocks := make([]protocol.ContentBlock, len(m.Content))
		changed := false
		for j, b := range m.Content {
			if b.Type == protocol.BlockToolResult {
				clipped := c.ClipToolOutput(b.Text)
				if clipped != b.Text {
					b.Text = clipped
					changed = true
				}
			}
			blocks[j] = b
		}
		if changed {
			out[i] = protocol.Message{Role: m.Role, Content: blocks}
		} else {
			out[i] = m
		}
	}
	return out
}
