package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arialabs/aria/internal/agent"
	"github.com/arialabs/aria/internal/skills"
)

// SpawnInput is the tool-call shape the main Loop uses to spawn a bounded
// sub-agent (spec §4.3 step 1 "spawn request"). Mirrors
// internal/subagent.SpawnInput without importing that package, which in
// turn imports internal/skills — SpawnerSkill takes the narrow Spawner
// interface instead to avoid the cycle.
type SpawnInput struct {
	Task          string   `json:"task"`
	Label         string   `json:"label,omitempty"`
	Tier          string   `json:"tier,omitempty"`
	AllowedSkills []string `json:"allowed_skills,omitempty"`
}

// SpawnResult is what the scheduler hands back once a sub-agent run
// finishes (spec §4.3 "Termination criteria").
type SpawnResult struct {
	RunID  string
	Status string
	Text   string
	Err    error
}

// Spawner is the narrow surface SpawnerSkill needs from
// internal/subagent.Scheduler. *subagent.Scheduler's own SpawnAndWait has a
// different signature; cmd/aria's schedulerSpawner adapter wraps it to
// satisfy this interface without this package importing internal/subagent.
type Spawner interface {
	SpawnAndWait(ctx context.Context, parentSessionKey string, task SpawnInput) (SpawnResult, error)
}

// SpawnerSkill registers a "subagent_spawn_wait" tool that blocks the calling
// turn until the child completes, exhausts its iteration cap, or times out
// (spec §4.3 "A parent blocks on SpawnAndWait" path; no tool exposes the
// fire-and-forget announce-queue path). The parent session key is read off ctx
// (agent.WithSessionKey, set once per turn by Loop.Run) rather than bound
// at registration time, since the Registry is a single immutable instance
// shared by every session (spec §5 "Shared-resource policy").
func SpawnerSkill(spawner Spawner) skills.Skill {
	return skills.Skill{
		Name: "subagent_spawn_wait",
		Description: "Delegate a bounded, single-purpose task to a child agent with a " +
			"restricted set of tools, and wait for its result.",
		Schema: skills.SchemaFor(SpawnInput{}),
		Kind:   skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in SpawnInput
			if err := json.Unmarshal(input, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			if in.Task == "" {
				return skills.ErrorResult("task is required"), nil
			}

			parentKey, _ := agent.SessionKeyFromContext(ctx)
			res, err := spawner.SpawnAndWait(ctx, parentKey, in)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			if res.Err != nil {
				return skills.ErrorResult(fmt.Sprintf("sub-agent %s: %v", res.Status, res.Err)), nil
			}
			return skills.NewResult(fmt.Sprintf("[%s] %s", res.Status, res.Text)), nil
		},
	}
}
