// Package mcp bridges external Model Context Protocol tool servers into the
// Skill Registry (SPEC_FULL.md §3 domain stack, "MCP external tools"),
// adapted from the teacher's internal/mcp/manager.go: a standalone,
// config-driven connection manager rather than goclaw's per-agent managed-
// mode permission store: which tools a sub-agent may call is decided by
// internal/skills.DeriveCapabilitySurface on each sub-agent run, not by a
// stored per-agent permission table.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/skills"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// ServerStatus reports the connection status of one MCP server.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}

// serverState tracks one MCP server connection and the skill names it
// registered into the shared Registry.
type serverState struct {
	name      string
	transport string
	client    *mcpclient.Client
	connected atomic.Bool
	toolNames []string
	cancel    context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// Manager owns a set of MCP server connections and bridges their tools into
// a skills.Registry as ordinary executable Skills (spec §9: skills are a
// closed Kind enum, not runtime interception — an MCP tool is just another
// Skill whose Handler happens to round-trip through a client connection).
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState
	registry *skills.Registry
	configs  map[string]*config.MCPServerConfig
}

// NewManager builds a Manager bridging cfgs into registry.
func NewManager(registry *skills.Registry, cfgs map[string]*config.MCPServerConfig) *Manager {
	return &Manager{
		servers:  make(map[string]*serverState),
		registry: registry,
		configs:  cfgs,
	}
}

// Start connects every enabled configured server. Non-fatal: a server that
// fails to connect is logged and skipped, matching the teacher's
// Manager.Start behavior so one broken MCP server never blocks gateway boot.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.configs) == 0 {
		return nil
	}
	var errs []string
	for name, cfg := range m.configs {
		if !cfg.IsEnabled() {
			slog.Info("mcp.server.disabled", "server", name)
			continue
		}
		if err := m.connectServer(ctx, name, cfg); err != nil {
			slog.Warn("mcp.server.connect_failed", "server", name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("some MCP servers failed to connect: %d of %d", len(errs), len(m.configs))
	}
	return nil
}

// Stop disconnects every server and unregisters its skills.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ss := range m.servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if ss.client != nil {
			_ = ss.client.Close()
		}
		for _, toolName := range ss.toolNames {
			m.registry.Unregister(toolName)
		}
		slog.Debug("mcp.server.stopped", "server", name, "tools", len(ss.toolNames))
	}
	m.servers = make(map[string]*serverState)
}

// ServerStatus reports the live status of every connected server.
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		ss.mu.Lock()
		errStr := ss.lastErr
		ss.mu.Unlock()
		out = append(out, ServerStatus{
			Name:      ss.name,
			Transport: ss.transport,
			Connected: ss.connected.Load(),
			ToolCount: len(ss.toolNames),
			Error:     errStr,
		})
	}
	return out
}
