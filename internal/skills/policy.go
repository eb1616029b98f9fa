package skills

import (
	"regexp"
	"strings"
)

// keywordRule maps a pattern over the sub-agent's task text to the skill
// names it auto-adds (spec §4.3 step 5 "keyword-based auto-selection").
type keywordRule struct {
	pattern *regexp.Regexp
	skills  []string
}

var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)search|find|look up`), []string{"web_search", "web_fetch"}},
	{regexp.MustCompile(`(?i)file|read|write|edit`), []string{"read_file", "write_file", "edit_file", "list_files"}},
	{regexp.MustCompile(`(?i)run|exec|command|shell`), []string{"exec"}},
}

// defaultSubagentSkills is used when a spawn request gives no explicit
// allowedSkills list (spec §4.3 step 5 "the default set").
var defaultSubagentSkills = []string{"read_file", "write_file", "exec", "web_search"}

// neverAllowedForSubagents is the deny list subtracted last, regardless of
// explicit allow or keyword auto-selection (spec §4.3 step 5, §9 Open
// Question #2 "deny-list wins"): the spawn tool itself, any check-agents
// tool, any direct user-messaging tool.
var neverAllowedForSubagents = map[string]bool{
	"subagent_spawn":      true,
	"subagent_spawn_wait": true,
	"subagents":           true,
	"session_status":      true,
	"sessions_send":       true,
	"message":             true,
}

// CapabilitySpec describes the inputs to deriving a sub-agent's capability
// surface, gathered from the spawn request.
type CapabilitySpec struct {
	AllowedSkills []string // explicit allow list; empty means use the default set
	TaskText      string   // task description, scanned for keyword auto-selection
}

// DeriveCapabilitySurface implements spec §4.3 step 5 end to end: start from
// an explicit allow list or the default set, apply keyword auto-selection,
// subtract the never-allowed set, and intersect with the concrete registry.
// Deny-list-wins is enforced by applying the subtraction after every
// additive step (resolves spec.md §9's open question).
func DeriveCapabilitySurface(reg *Registry, spec CapabilitySpec) Filter {
	allowed := make(map[string]bool)

	base := spec.AllowedSkills
	if len(base) == 0 {
		base = defaultSubagentSkills
	}
	for _, name := range base {
		allowed[name] = true
	}

	for _, rule := range keywordRules {
		if rule.pattern.MatchString(spec.TaskText) {
			for _, name := range rule.skills {
				allowed[name] = true
			}
		}
	}

	for name := range neverAllowedForSubagents {
		delete(allowed, name)
	}

	existing := make(map[string]bool)
	for _, s := range reg.List() {
		existing[s.Name] = true
	}

	return func(name string) bool {
		return allowed[name] && existing[name]
	}
}

// LeafFilter composes an additional deny list on top of a base filter, used
// when a sub-agent is itself at max spawn depth and loses the ability to
// spawn or enumerate further sub-agents.
func LeafFilter(base Filter, extraDeny ...string) Filter {
	deny := make(map[string]bool, len(extraDeny))
	for _, d := range extraDeny {
		deny[d] = true
	}
	return func(name string) bool {
		if deny[name] {
			return false
		}
		return base(name)
	}
}

// normalizeTaskText lowercases and collapses whitespace before keyword
// matching; kept separate from the regexes (which are already
// case-insensitive) so other callers can reuse consistent normalization for
// logging or caching.
func normalizeTaskText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
