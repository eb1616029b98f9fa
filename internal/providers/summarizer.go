package providers

import (
	"context"
	"fmt"

	"github.com/arialabs/aria/pkg/protocol"
)

// LadderSummarizer adapts a DegradationLadder to internal/memory.Summarizer,
// so the Fusion Engine's single structured completion call goes through the
// same tiered fallback as ordinary chat turns (spec §4.2 "send a structured
// prompt to the LLM").
type LadderSummarizer struct {
	Ladder *DegradationLadder
	Model  string
}

func (s *LadderSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	req := ChatRequest{
		Messages: []protocol.Message{protocol.UserText(prompt)},
		Model:    s.Model,
	}
	resp := s.Ladder.Execute(ctx, req)
	if resp.Degraded {
		return "", fmt.Errorf("fusion: llm unavailable (degraded ladder)")
	}
	return resp.Message.Text(), nil
}
