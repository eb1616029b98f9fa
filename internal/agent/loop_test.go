package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/arialabs/aria/internal/providers"
	"github.com/arialabs/aria/internal/sessions"
	"github.com/arialabs/aria/internal/skills"
	"github.com/arialabs/aria/pkg/protocol"
)

// fakeProvider scripts a fixed sequence of ChatResponses, repeating the
// last one if the loop calls it more times than the script covers (the
// iteration-cap scenario).
type fakeProvider struct {
	responses []*providers.ChatResponse
	calls     []providers.ChatRequest
	next      int
}

func (p *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.calls = append(p.calls, req)
	i := p.next
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.next++
	return p.responses[i], nil
}

func (p *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *fakeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeProvider) Name() string         { return "fake" }

// fakeSkillView is a minimal SkillView backed by a plain map, so tests
// don't need a full skills.Registry.
type fakeSkillView struct {
	byName map[string]skills.Skill
}

func (v fakeSkillView) Get(name string) (skills.Skill, bool) {
	s, ok := v.byName[name]
	return s, ok
}

func (v fakeSkillView) ToolDefinitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(v.byName))
	for _, s := range v.byName {
		defs = append(defs, providers.ToolDefinition{Name: s.Name, Description: s.Description})
	}
	return defs
}

func newTestLoop(t *testing.T, provider providers.Provider, view fakeSkillView, maxIterations int) *Loop {
	t.Helper()
	router := providers.NewRouter(map[providers.Tier][]providers.Provider{"local": {provider}}, nil, nil)
	ladder := providers.NewDegradationLadder(router, []providers.Tier{"local"}, "")
	return NewLoop(Deps{
		Sessions: sessions.NewManager(nil),
		Skills:   view,
		Ladder:   ladder,
	}, Config{MaxIterations: maxIterations})
}

func toolUseResponse(toolID, skill string, input string) *providers.ChatResponse {
	return &providers.ChatResponse{
		StopReason: providers.StopToolUse,
		Message: protocol.Message{
			Role:    protocol.RoleAssistant,
			Content: []protocol.ContentBlock{protocol.ToolUseBlock(toolID, skill, json.RawMessage(input))},
		},
	}
}

func endTurnResponse(text string) *providers.ChatResponse {
	return &providers.ChatResponse{
		StopReason: providers.StopEndTurn,
		Message:    protocol.AssistantText(text),
	}
}

// TestLoop_Run_SingleToolUse covers spec §8's "single tool use" scenario:
// the model calls one skill, gets its result fed back, then answers with
// the completion sentinel.
func TestLoop_Run_SingleToolUse(t *testing.T) {
	echoCalled := false
	echo := skills.Skill{
		Name: "echo",
		Kind: skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			echoCalled = true
			return skills.NewResult("echoed: " + string(input)), nil
		},
	}

	provider := &fakeProvider{responses: []*providers.ChatResponse{
		toolUseResponse("t1", "echo", `{"msg":"hi"}`),
		endTurnResponse("All set. [DONE]"),
	}}
	loop := newTestLoop(t, provider, fakeSkillView{byName: map[string]skills.Skill{"echo": echo}}, 10)

	res, err := loop.Run(context.Background(), RunRequest{SessionKey: "s1", Message: "use echo"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !echoCalled {
		t.Error("expected the echo skill handler to run")
	}
	if !res.Done {
		t.Error("RunResult.Done = false, want true: the model emitted the completion sentinel")
	}
	if res.Text != "All set. " {
		t.Errorf("RunResult.Text = %q, want the sentinel stripped from the final response", res.Text)
	}
	if res.Iterations != 2 {
		t.Errorf("RunResult.Iterations = %d, want 2 (tool-use turn + final turn)", res.Iterations)
	}
}

// TestLoop_Run_UnknownToolRecovery covers spec §8's "unknown-tool recovery"
// scenario: the model names a tool that isn't in the registry, the loop
// feeds back the "Unknown skill" error as a tool result rather than
// failing the turn, and the model gets a chance to recover.
func TestLoop_Run_UnknownToolRecovery(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{
		toolUseResponse("t1", "does_not_exist", `{}`),
		endTurnResponse("Sorry, let me try something else. [DONE]"),
	}}
	loop := newTestLoop(t, provider, fakeSkillView{byName: map[string]skills.Skill{}}, 10)

	res, err := loop.Run(context.Background(), RunRequest{SessionKey: "s2", Message: "use a bogus tool"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(provider.calls) != 2 {
		t.Fatalf("provider was called %d times, want 2 (initial + recovery)", len(provider.calls))
	}

	feedback := provider.calls[1].Messages[len(provider.calls[1].Messages)-1]
	result, ok := feedback.ToolResultFor("t1")
	if !ok {
		t.Fatal("expected a tool_result for t1 fed back into the second provider call")
	}
	if !result.IsError {
		t.Error("tool_result for an unknown skill should be flagged IsError")
	}
	wantPrefix := `Unknown skill: "does_not_exist"`
	if result.Text != wantPrefix {
		t.Errorf("tool_result.Text = %q, want %q", result.Text, wantPrefix)
	}
	if !res.Done {
		t.Error("RunResult.Done = false, want true: the model recovered and emitted the sentinel")
	}
}

// TestLoop_Run_IterationCapReached covers spec §8's "iteration cap reached"
// scenario: the model never emits the completion sentinel, so the loop
// must stop at maxIterations with the closing message and Done=false.
func TestLoop_Run_IterationCapReached(t *testing.T) {
	loopSkill := skills.Skill{
		Name: "noop",
		Kind: skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			return skills.NewResult("did nothing"), nil
		},
	}
	// Every call asks for the same tool again — the model never stops on
	// its own, so the loop must enforce the cap itself.
	provider := &fakeProvider{responses: []*providers.ChatResponse{
		toolUseResponse("t1", "noop", `{}`),
	}}
	loop := newTestLoop(t, provider, fakeSkillView{byName: map[string]skills.Skill{"noop": loopSkill}}, 3)

	res, err := loop.Run(context.Background(), RunRequest{SessionKey: "s3", Message: "loop forever"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Done {
		t.Error("RunResult.Done = true, want false: the iteration cap was hit without the completion sentinel")
	}
	if res.Iterations != 3 {
		t.Errorf("RunResult.Iterations = %d, want 3 (the configured cap)", res.Iterations)
	}
	want := "I've reached the maximum iterations for this turn and need to stop here. Please let me know how you'd like to continue."
	if res.Text != want {
		t.Errorf("RunResult.Text = %q, want the iteration-cap closing message %q", res.Text, want)
	}
}
