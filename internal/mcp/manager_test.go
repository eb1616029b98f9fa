package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/skills"
)

func TestManager_Start_NoConfiguredServers(t *testing.T) {
	registry := skills.NewRegistry()
	m := NewManager(registry, nil)

	err := m.Start(context.Background())

	require.NoError(t, err)
	assert.Empty(t, m.ServerStatus())
}

func TestManager_Start_SkipsDisabledServers(t *testing.T) {
	registry := skills.NewRegistry()
	disabled := false
	m := NewManager(registry, map[string]*config.MCPServerConfig{
		"search": {Enabled: &disabled, Transport: "stdio", Command: "nonexistent-binary"},
	})

	err := m.Start(context.Background())

	require.NoError(t, err)
	assert.Empty(t, m.ServerStatus())
}

func TestManager_Start_ReportsFailedConnectionsNonFatally(t *testing.T) {
	registry := skills.NewRegistry()
	m := NewManager(registry, map[string]*config.MCPServerConfig{
		"broken": {Transport: "stdio", Command: "definitely-not-a-real-binary-path"},
	})

	err := m.Start(context.Background())

	assert.Error(t, err)
	assert.Empty(t, registry.List())
}

func TestManager_Stop_OnEmptyManagerIsSafe(t *testing.T) {
	registry := skills.NewRegistry()
	m := NewManager(registry, nil)

	assert.NotPanics(t, func() { m.Stop() })
	assert.Empty(t, m.ServerStatus())
}
