package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/arialabs/aria/internal/agent"
)

type fakeSpawner struct {
	gotParentKey string
	gotInput     SpawnInput
	result       SpawnResult
	err          error
}

func (f *fakeSpawner) SpawnAndWait(ctx context.Context, parentSessionKey string, task SpawnInput) (SpawnResult, error) {
	f.gotParentKey = parentSessionKey
	f.gotInput = task
	return f.result, f.err
}

func callSpawnSkill(t *testing.T, spawner *fakeSpawner, ctx context.Context, in SpawnInput) *struct {
	ForLLM  string
	IsError bool
} {
	t.Helper()
	skill := SpawnerSkill(spawner)
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	res, err := skill.Handler(ctx, raw)
	if err != nil {
		t.Fatalf("handler returned an error (should always return via *Result): %v", err)
	}
	return &struct {
		ForLLM  string
		IsError bool
	}{res.ForLLM, res.IsError}
}

func TestSpawnerSkill_Name(t *testing.T) {
	skill := SpawnerSkill(&fakeSpawner{})
	if skill.Name != "subagent_spawn_wait" {
		t.Errorf("skill.Name = %q, want subagent_spawn_wait (must match the deny-list entry in internal/skills/policy.go)", skill.Name)
	}
}

func TestSpawnerSkill_PassesParentSessionKeyFromContext(t *testing.T) {
	spawner := &fakeSpawner{result: SpawnResult{RunID: "r1", Status: "completed", Text: "done"}}
	ctx := agent.WithSessionKey(context.Background(), "parent-session-1")

	callSpawnSkill(t, spawner, ctx, SpawnInput{Task: "summarize this doc"})

	if spawner.gotParentKey != "parent-session-1" {
		t.Errorf("parentSessionKey = %q, want parent-session-1", spawner.gotParentKey)
	}
	if spawner.gotInput.Task != "summarize this doc" {
		t.Errorf("task = %q, want the unmarshaled input task", spawner.gotInput.Task)
	}
}

func TestSpawnerSkill_RejectsEmptyTask(t *testing.T) {
	spawner := &fakeSpawner{}
	res := callSpawnSkill(t, spawner, context.Background(), SpawnInput{})
	if !res.IsError {
		t.Error("expected an error result for an empty task")
	}
	if spawner.gotInput.Task != "" || spawner.gotParentKey != "" {
		t.Error("the scheduler should never be invoked for an empty task")
	}
}

func TestSpawnerSkill_SurfacesSpawnError(t *testing.T) {
	spawner := &fakeSpawner{err: errors.New("depth exceeded")}
	res := callSpawnSkill(t, spawner, context.Background(), SpawnInput{Task: "x"})
	if !res.IsError {
		t.Error("expected an error result when SpawnAndWait fails")
	}
}

func TestSpawnerSkill_SurfacesChildRunError(t *testing.T) {
	spawner := &fakeSpawner{result: SpawnResult{Status: "failed", Err: errors.New("child crashed")}}
	res := callSpawnSkill(t, spawner, context.Background(), SpawnInput{Task: "x"})
	if !res.IsError {
		t.Error("expected an error result when the child run itself errored")
	}
}

func TestSpawnerSkill_ReturnsChildTextOnSuccess(t *testing.T) {
	spawner := &fakeSpawner{result: SpawnResult{Status: "completed", Text: "the answer is 42"}}
	res := callSpawnSkill(t, spawner, context.Background(), SpawnInput{Task: "compute"})
	if res.IsError {
		t.Fatal("did not expect an error result for a successful run")
	}
	if res.ForLLM == "" {
		t.Error("expected a non-empty ForLLM summary of the child's result")
	}
}
