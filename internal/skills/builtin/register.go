package builtin

import (
	"time"

	"github.com/arialabs/aria/internal/skills"
)

// RegisterAll registers every built-in skill into reg, scoped to
// workspace. Called once at boot wiring (cmd/aria/serve.go) — the Registry
// is immutable after startup (spec §5).
func RegisterAll(reg *skills.Registry, workspace string, execTimeout time.Duration) {
	reg.Register(ReadFileSkill(workspace))
	reg.Register(WriteFileSkill(workspace))
	reg.Register(EditFileSkill(workspace))
	reg.Register(ListFilesSkill(workspace))
	reg.Register(ExecSkill(workspace, execTimeout))
	reg.Register(WebSearchSkill())
	reg.Register(WebFetchSkill())
}
