// Package toolexecutor registers and executes function tools offered to the model.
//
// Invariants:
// - Tool names are unique; registering a name again replaces the tool.
// - Arguments are validated against the tool's JSON Schema before the handler runs.
// - Handler failures, timeouts and panics become a failed ToolResult, never an error return.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	result := exec.ExecuteJSON(ctx, "echo", `{"text":"hi"}`, nil)
//
// MCPServerAdapter bridges the tools of an external MCP server over stdio.
package toolexecutor
