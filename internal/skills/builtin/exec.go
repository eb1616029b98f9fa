package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/arialabs/aria/internal/skills"
)

// denyPatterns blocks the highest-risk shell primitives before a command
// ever reaches exec.Command — a condensed form of the teacher's
// defaultDenyPatterns (destructive file ops, reverse shells, exfiltration
// one-liners), trimmed to the subset relevant without the teacher's Docker
// sandbox layered underneath (out of scope here — see DESIGN.md).
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\b(mkfs|diskpart|shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`/dev/tcp/`),
}

type execInput struct {
	Command string `json:"command"`
}

// ExecSkill registers a bounded shell-command runner: a deny-pattern
// prefilter, a hard wall-clock timeout, and truncated combined output,
// grounded on the teacher's shell.go ShellTool minus its sandbox-manager
// indirection.
func ExecSkill(workspace string, timeout time.Duration) skills.Skill {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return skills.Skill{
		Name:        "exec",
		Description: "Run a shell command within the agent's workspace and return its combined output.",
		Schema:      skills.SchemaFor(execInput{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in execInput
			if err := json.Unmarshal(input, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			for _, pat := range denyPatterns {
				if pat.MatchString(in.Command) {
					return skills.ErrorResult("command rejected: matches a denied pattern"), nil
				}
			}

			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", in.Command)
			cmd.Dir = workspace
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out
			err := cmd.Run()

			output := out.String()
			const cap = 16_000
			if len(output) > cap {
				output = output[:cap] + "\n...[truncated]"
			}
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("command failed: %v\n%s", err, output)), nil
			}
			return skills.NewResult(output), nil
		},
	}
}
