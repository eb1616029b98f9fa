package skills

import "testing"

func registryWith(names ...string) *Registry {
	reg := NewRegistry()
	for _, n := range names {
		reg.Register(Skill{Name: n, Kind: KindExecutable})
	}
	return reg
}

func TestDeriveCapabilitySurface_DefaultsWhenNoAllowList(t *testing.T) {
	reg := registryWith("read_file", "write_file", "exec", "web_search", "web_fetch", "subagent_spawn_wait")
	filter := DeriveCapabilitySurface(reg, CapabilitySpec{})

	for _, name := range defaultSubagentSkills {
		if !filter(name) {
			t.Errorf("filter(%q) = false, want true (default set)", name)
		}
	}
	if filter("web_fetch") {
		t.Error("filter(web_fetch) = true, want false: not in the default set and task text has no search keyword")
	}
}

func TestDeriveCapabilitySurface_KeywordAutoSelection(t *testing.T) {
	reg := registryWith("read_file", "write_file", "exec", "web_search", "web_fetch", "edit_file", "list_files")
	filter := DeriveCapabilitySurface(reg, CapabilitySpec{
		AllowedSkills: []string{"read_file"},
		TaskText:      "please search the web for recent news",
	})

	if !filter("read_file") {
		t.Error("filter(read_file) = false, want true (explicit allow)")
	}
	if !filter("web_search") || !filter("web_fetch") {
		t.Error("keyword rule for 'search' should auto-add web_search and web_fetch")
	}
	if filter("exec") {
		t.Error("filter(exec) = true, want false: not explicitly allowed and no exec-related keyword present")
	}
}

func TestDeriveCapabilitySurface_DenyListWinsOverExplicitAllow(t *testing.T) {
	reg := registryWith("subagent_spawn_wait", "session_status", "sessions_send", "message", "read_file")
	filter := DeriveCapabilitySurface(reg, CapabilitySpec{
		AllowedSkills: []string{"subagent_spawn_wait", "session_status", "sessions_send", "message", "read_file"},
	})

	for _, denied := range []string{"subagent_spawn_wait", "session_status", "sessions_send", "message"} {
		if filter(denied) {
			t.Errorf("filter(%q) = true, want false: deny-list must win even over an explicit allow entry", denied)
		}
	}
	if !filter("read_file") {
		t.Error("filter(read_file) = false, want true: not on the deny list")
	}
}

func TestDeriveCapabilitySurface_IntersectsWithRegisteredSkills(t *testing.T) {
	reg := registryWith("read_file") // write_file/exec/web_search never registered
	filter := DeriveCapabilitySurface(reg, CapabilitySpec{})

	if !filter("read_file") {
		t.Error("filter(read_file) = false, want true")
	}
	if filter("write_file") {
		t.Error("filter(write_file) = true, want false: allowed by default set but not actually registered")
	}
}

func TestLeafFilter_AddsDenyOnTopOfBase(t *testing.T) {
	base := func(name string) bool { return name == "read_file" || name == "subagent_spawn_wait" }
	filter := LeafFilter(base, "subagent_spawn_wait")

	if filter("subagent_spawn_wait") {
		t.Error("LeafFilter should deny subagent_spawn_wait even though base allows it")
	}
	if !filter("read_file") {
		t.Error("LeafFilter should pass through base's allow for read_file")
	}
}

func TestNormalizeTaskText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Search   The Web  ", "search the web"},
		{"already normal", "already normal"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeTaskText(tt.in); got != tt.want {
			t.Errorf("normalizeTaskText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
