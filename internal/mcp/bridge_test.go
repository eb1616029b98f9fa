package mcp

import (
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestToResult_FlattensTextContentBlocks(t *testing.T) {
	resp := &mcpgo.CallToolResult{
		Content: []mcpgo.Content{
			mcpgo.TextContent{Text: "line one"},
			mcpgo.TextContent{Text: "line two"},
		},
	}

	result := toResult(resp)

	assert.False(t, result.IsError)
	assert.Equal(t, "line one\nline two", result.ForLLM)
}

func TestToResult_ErrorWithNoTextFallsBackToGenericMessage(t *testing.T) {
	resp := &mcpgo.CallToolResult{IsError: true}

	result := toResult(resp)

	assert.True(t, result.IsError)
	assert.Equal(t, "unknown MCP tool error", result.ForLLM)
}

func TestToResult_EmptySuccessUsesPlaceholder(t *testing.T) {
	resp := &mcpgo.CallToolResult{}

	result := toResult(resp)

	assert.False(t, result.IsError)
	assert.Equal(t, "(no output)", result.ForLLM)
}

func TestConvertSchema_RoundTripsJSONSchemaFields(t *testing.T) {
	schema := mcpgo.ToolInputSchema{
		Type:     "object",
		Required: []string{"query"},
		Properties: map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}

	out := convertSchema(schema)

	assert.Equal(t, "object", out["type"])
	assert.Equal(t, []interface{}{"query"}, out["required"])
}
