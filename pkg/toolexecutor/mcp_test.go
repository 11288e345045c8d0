package toolexecutor

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/turnstream/pkg/protocol"
)

// TestMCPServerHelper is re-executed as the MCP server process by the tests below
func TestMCPServerHelper(t *testing.T) {
	if os.Getenv("MCP_SERVER_HELPER") != "1" {
		t.Skip("helper process")
	}

	s := server.NewMCPServer("helper", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("calculator",
		mcp.WithDescription("adds two numbers"),
		mcp.WithNumber("a", mcp.Required()),
		mcp.WithNumber("b", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return mcp.NewToolResultText(fmt.Sprintf("%g", a+b)), nil
	})
	s.AddTool(mcp.NewTool("ping", mcp.WithDescription("always fails")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("pong"), nil
		})

	_ = server.ServeStdio(s)
}

func newHelperAdapter(t *testing.T) *MCPServerAdapter {
	t.Helper()
	adapter := NewMCPServerAdapter("test", os.Args[0], []string{"-test.run", "^TestMCPServerHelper$"},
		append(os.Environ(), "MCP_SERVER_HELPER=1")...)
	t.Cleanup(func() { _ = adapter.Stop() })
	return adapter
}

func TestMCPServerAdapter_ToolsAndCall(t *testing.T) {
	ctx := context.Background()
	adapter := newHelperAdapter(t)

	assert.True(t, adapter.Available())

	specs, err := adapter.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	byName := map[string]protocol.ToolSpec{}
	for _, spec := range specs {
		byName[spec.Name()] = spec
	}
	require.Contains(t, byName, "calculator")
	require.Contains(t, byName, "ping")
	assert.Equal(t, "object", byName["calculator"].Function.Parameters["type"])
	assert.Contains(t, byName["calculator"].Function.Parameters["properties"], "a")
	assert.Equal(t, "adds two numbers", byName["calculator"].Function.Description)
	assert.NotNil(t, byName["ping"].Function.Parameters)

	output, err := adapter.Call(ctx, "calculator", `{"a":2,"b":3}`)
	require.NoError(t, err)
	assert.Equal(t, "5", output)

	_, err = adapter.Call(ctx, "ping", "")
	require.Error(t, err)
	assert.Equal(t, "pong", err.Error())

	_, err = adapter.Call(ctx, "missing", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found")

	_, err = adapter.Call(ctx, "calculator", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse arguments")
}

func TestMCPServerAdapter_Availability(t *testing.T) {
	var nilAdapter *MCPServerAdapter
	assert.False(t, nilAdapter.Available())
	assert.False(t, NewMCPServerAdapter("none", "", nil).Available())
	assert.False(t, NewMCPServerAdapter("none", "turnstream-no-such-binary", nil).Available())

	_, err := NewMCPServerAdapter("none", "turnstream-no-such-binary", nil).Tools(context.Background())
	assert.Error(t, err)
}

func TestMCPServerAdapter_StopMakesUnavailable(t *testing.T) {
	ctx := context.Background()
	adapter := newHelperAdapter(t)

	_, err := adapter.Tools(ctx)
	require.NoError(t, err)
	require.NoError(t, adapter.Stop())

	assert.Eventually(t, func() bool { return !adapter.Available() }, 5*time.Second, 10*time.Millisecond)

	_, err = adapter.Call(ctx, "calculator", `{"a":1,"b":1}`)
	assert.ErrorIs(t, err, ErrBridgeClosed)
}

func TestMCPServerAdapter_ServerExitsBeforeHandshake(t *testing.T) {
	// Without the helper variable the re-executed binary skips the server and exits.
	adapter := NewMCPServerAdapter("gone", os.Args[0], []string{"-test.run", "^TestMCPServerHelper$"})
	t.Cleanup(func() { _ = adapter.Stop() })

	_, err := adapter.Tools(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBridgeClosed)
	assert.False(t, adapter.Available())

	_, err = adapter.Call(context.Background(), "calculator", `{"a":1,"b":1}`)
	assert.ErrorIs(t, err, ErrBridgeClosed)
}
