package toolexecutor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/turnstream/pkg/protocol"
)

func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo the input",
		Parameters: []ToolParameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["text"], nil
		},
	}
}

func TestToolExecutor_RegisterTool(t *testing.T) {
	te := New()

	err := te.RegisterTool(echoTool())
	assert.NoError(t, err)

	tool := te.GetTool("echo")
	require.NotNil(t, tool)
	assert.Equal(t, "echo", tool.Name)
	assert.True(t, te.HasTool("echo"))
	assert.False(t, te.HasTool("missing"))
}

func TestToolExecutor_RegisterTool_InvalidDefinition(t *testing.T) {
	te := New()
	noop := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil }

	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{
			name: "empty name",
			def:  ToolDefinition{Description: "Test", Handler: noop},
		},
		{
			name: "empty description",
			def:  ToolDefinition{Name: "test", Handler: noop},
		},
		{
			name: "nil handler",
			def:  ToolDefinition{Name: "test", Description: "Test"},
		},
		{
			name: "invalid parameter type",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Handler:     noop,
				Parameters:  []ToolParameter{{Name: "p", Type: "date", Description: "p"}},
			},
		},
		{
			name: "parameter without description",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Handler:     noop,
				Parameters:  []ToolParameter{{Name: "p", Type: "string"}},
			},
		},
		{
			name: "invalid schema",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Handler:     noop,
				Schema:      map[string]interface{}{"type": 42},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := te.RegisterTool(tt.def)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 0, te.GetToolCount())
}

func TestToolExecutor_Execute_Success(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	result := te.Execute(context.Background(), "echo", map[string]interface{}{"text": "hello"}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Output)
	assert.Empty(t, result.Error)
	assert.Equal(t, "hello", result.Text())
}

func TestToolExecutor_ExecuteJSON(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	t.Run("decodes arguments", func(t *testing.T) {
		result := te.ExecuteJSON(context.Background(), "echo", `{"text":"from json"}`, nil)
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "from json", result.Text())
	})

	t.Run("malformed arguments", func(t *testing.T) {
		result := te.ExecuteJSON(context.Background(), "echo", `{"text":`, nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "failed to parse arguments")
	})

	t.Run("empty arguments become an empty object", func(t *testing.T) {
		result := te.ExecuteJSON(context.Background(), "echo", "", nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "parameter validation failed")
	})
}

func TestToolExecutor_Execute_ToolNotFound(t *testing.T) {
	te := New()

	result := te.Execute(context.Background(), "nonexistent", map[string]interface{}{}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool not found")
}

func TestToolExecutor_Execute_ValidationError(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{name: "missing required", params: map[string]interface{}{}},
		{name: "wrong type", params: map[string]interface{}{"text": 42.0}},
		{name: "unknown property", params: map[string]interface{}{"text": "a", "extra": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := te.Execute(context.Background(), "echo", tt.params, nil)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "parameter validation failed")
		})
	}
}

func TestToolExecutor_Execute_EnumParameter(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "mode",
		Description: "Pick a mode",
		Parameters: []ToolParameter{
			{Name: "mode", Type: "string", Description: "Mode", Required: true, Enum: []string{"fast", "slow"}},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["mode"], nil
		},
	}))

	assert.True(t, te.Execute(context.Background(), "mode", map[string]interface{}{"mode": "fast"}, nil).Success)
	assert.False(t, te.Execute(context.Background(), "mode", map[string]interface{}{"mode": "medium"}, nil).Success)
}

func TestToolExecutor_Execute_RawSchema(t *testing.T) {
	te := New()
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"count": map[string]interface{}{"type": "integer", "minimum": 1},
		},
		"required": []interface{}{"count"},
	}
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "repeat",
		Description: "Repeat",
		Schema:      schema,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return strings.Repeat("x", int(params["count"].(float64))), nil
		},
	}))

	result := te.ExecuteJSON(context.Background(), "repeat", `{"count":3}`, nil)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "xxx", result.Text())

	result = te.ExecuteJSON(context.Background(), "repeat", `{"count":0}`, nil)
	assert.False(t, result.Success)
}

func TestToolExecutor_Execute_HandlerError(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "failing",
		Description: "Always fails",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, errors.New("disk on fire")
		},
	}))

	result := te.Execute(context.Background(), "failing", nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "disk on fire", result.Error)
	assert.Equal(t, "disk on fire", result.Text())
}

func TestToolExecutor_Execute_Panic(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "panics",
		Description: "Panics",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			panic("boom")
		},
	}))

	result := te.Execute(context.Background(), "panics", nil, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool panicked: boom")
}

func TestToolExecutor_Execute_Timeout(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "slow",
		Description: "Slow tool",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))

	start := time.Now()
	result := te.Execute(context.Background(), "slow", nil, &ExecutionContext{Timeout: 50 * time.Millisecond})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestToolExecutor_Execute_ToolTimeoutAndCancel(t *testing.T) {
	te := New(WithDefaultTimeout(time.Minute))
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "blocking",
		Description: "Blocks until cancelled",
		Timeout:     20 * time.Millisecond,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	result := te.Execute(context.Background(), "blocking", nil, nil)
	assert.False(t, result.Success)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result = te.Execute(ctx, "blocking", nil, nil)
	assert.False(t, result.Success)
}

func TestToolExecutor_Execute_ExecContextReachesHandler(t *testing.T) {
	te := New()
	var seen string
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "whoami",
		Description: "Reports its call id",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			seen = CallIDFromContext(ctx)
			return seen, nil
		},
	}))

	result := te.Execute(context.Background(), "whoami", nil, &ExecutionContext{CallID: "call_7"})

	require.True(t, result.Success)
	assert.Equal(t, "call_7", seen)
	assert.Empty(t, CallIDFromContext(context.Background()))
}

func TestToolExecutor_Execute_OutputTruncation(t *testing.T) {
	te := New(WithMaxOutputSize(16))
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "big",
		Description: "Large output",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return strings.Repeat("a", 100), nil
		},
	}))

	result := te.Execute(context.Background(), "big", nil, nil)

	require.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.True(t, strings.HasPrefix(result.Text(), strings.Repeat("a", 16)))
	assert.Contains(t, result.Text(), "[output truncated]")
}

func TestToolResult_TextRendersStructuredOutput(t *testing.T) {
	result := ToolResult{Success: true, Output: map[string]interface{}{"sum": 5}}
	assert.JSONEq(t, `{"sum":5}`, result.Text())

	assert.Equal(t, "", ToolResult{Success: true}.Text())
}

func TestToolExecutor_ListToolsAndSpecs(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "alpha",
		Description: "First alphabetically",
		Strict:      true,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}))

	assert.Equal(t, []string{"alpha", "echo"}, te.ListTools())
	assert.Equal(t, 2, te.GetToolCount())

	specs := te.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, protocol.ToolKindFunction, specs[0].Kind)
	assert.Equal(t, "alpha", specs[0].Name())
	assert.True(t, specs[0].Function.Strict)
	assert.Equal(t, "echo", specs[1].Name())

	params := specs[1].Function.Parameters
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []string{"text"}, params["required"])
}

