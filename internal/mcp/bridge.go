package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/arialabs/aria/internal/skills"
)

// bridgeSkill wraps one MCP tool as a skills.Skill whose Handler round-trips
// a tool_use call through the owning client connection. The schema is
// passed through as-is (already JSON Schema per the MCP spec), matching the
// teacher's BridgeTool but expressed against this repo's skills.Skill shape
// instead of goclaw's internal/tools.Tool interface.
func bridgeSkill(serverName string, t mcpgo.Tool, client *mcpclient.Client, prefix string, timeout time.Duration, connected *atomic.Bool) skills.Skill {
	name := t.Name
	if prefix != "" {
		name = prefix + t.Name
	}
	schema := convertSchema(t.InputSchema)
	originalName := t.Name

	return skills.Skill{
		Name:        name,
		Description: t.Description,
		Schema:      schema,
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			if !connected.Load() {
				return skills.ErrorResult(fmt.Sprintf("mcp server %q is disconnected", serverName)), nil
			}
			var args map[string]interface{}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &args); err != nil {
					return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
				}
			}

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req := mcpgo.CallToolRequest{}
			req.Params.Name = originalName
			req.Params.Arguments = args

			resp, err := client.CallTool(callCtx, req)
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("mcp call %q: %v", originalName, err)), nil
			}
			return toResult(resp), nil
		},
	}
}

// toResult flattens an MCP CallToolResult's text content blocks into a
// single string for the tool_result block the Agent Turn Engine feeds back.
func toResult(resp *mcpgo.CallToolResult) *skills.Result {
	var text string
	for _, c := range resp.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	if resp.IsError {
		if text == "" {
			text = "unknown MCP tool error"
		}
		return skills.ErrorResult(text)
	}
	if text == "" {
		text = "(no output)"
	}
	return skills.NewResult(text)
}

// convertSchema re-marshals an MCP tool's input schema into the plain
// map[string]interface{} shape skills.Skill.Schema expects.
func convertSchema(schema mcpgo.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
