package skills

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arialabs/aria/internal/providers"
)

// Registry is the immutable-after-startup catalog of Skills (spec §5
// "Shared-resource policy": "The Skill Registry is immutable after
// startup; filtering views over it are read-only proxies"). Register
// calls are only expected during boot wiring; Lookup/List are safe for
// concurrent use from many in-flight turns.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds or replaces a skill descriptor.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = s
}

// Get looks up a skill by exact name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Unregister removes a skill, used by internal/mcp when an external tool
// server disconnects or is reloaded. The registry is immutable only with
// respect to in-flight turns reading through Get/List concurrently; this
// is startup-and-reconnect-time wiring, never called mid-turn.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.skills, name)
}

// List returns every registered skill, sorted by name for deterministic
// system-prompt rendering.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Filter is a predicate deciding whether a named skill is visible through a
// given View (spec §9: "express filtering as a predicate passed into the
// lookup function").
type Filter func(name string) bool

// AllowAll is the identity filter used by the main agent (no restriction).
func AllowAll(string) bool { return true }

// View is a read-only, filtered projection of a Registry — what a
// sub-agent's capability surface actually sees (spec §4.3 step 6 "Build a
// filtering view of the Skill Registry that pretends the allowed set is
// the whole registry").
type View struct {
	reg    *Registry
	filter Filter
}

// NewView builds a filtering view over reg.
func NewView(reg *Registry, filter Filter) *View {
	if filter == nil {
		filter = AllowAll
	}
	return &View{reg: reg, filter: filter}
}

// Get looks up a skill, returning ok=false if it exists in the underlying
// registry but is filtered out — from the caller's perspective, an
// invisible skill behaves exactly like a nonexistent one.
func (v *View) Get(name string) (Skill, bool) {
	s, ok := v.reg.Get(name)
	if !ok || !v.filter(name) {
		return Skill{}, false
	}
	return s, true
}

// List returns every skill visible through this view.
func (v *View) List() []Skill {
	var out []Skill
	for _, s := range v.reg.List() {
		if v.filter(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// ToolDefinitions converts every visible executable skill to a provider
// tool definition, the shape the Agent Turn Engine hands the Router.
func (v *View) ToolDefinitions() []providers.ToolDefinition {
	visible := v.List()
	defs := make([]providers.ToolDefinition, 0, len(visible))
	for _, s := range visible {
		if s.Kind != KindExecutable {
			continue
		}
		defs = append(defs, providers.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Schema,
		})
	}
	return defs
}

// ErrUnknownSkill is returned by Invoke when name is not visible through
// the view, matching spec §7's "Unknown-tool error" treatment.
func ErrUnknownSkill(name string) error {
	return fmt.Errorf("Unknown skill: %q", name)
}
