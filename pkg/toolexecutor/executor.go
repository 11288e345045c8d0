package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/pkg/protocol"
)

const (
	// DefaultTimeout bounds a single handler call when neither the tool nor the caller sets one
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutputSize is the rendered output size above which results are truncated
	DefaultMaxOutputSize = 10 * 1024

	truncationMarker = "\n... [output truncated]"
)

// ToolParameter represents a tool parameter
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // string, number, integer, boolean, object, array
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// ToolDefinition defines a tool. Schema, when set, is used verbatim as the
// parameter schema and Parameters is ignored.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  []ToolParameter        `json:"parameters,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
	Strict      bool                   `json:"strict,omitempty"`
	Timeout     time.Duration          `json:"-"`
	Handler     ToolHandler            `json:"-"`
}

// ToolHandler is the function that executes the tool
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ExecutionContext carries the turn a call belongs to
type ExecutionContext struct {
	ConversationID string
	SubmissionID   string
	CallID         string
	Timeout        time.Duration
}

// ToolResult represents the result of tool execution
type ToolResult struct {
	Success   bool          `json:"success"`
	Output    interface{}   `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Text renders the result as the string sent back to the model
func (r ToolResult) Text() string {
	if !r.Success {
		return r.Error
	}
	return renderOutput(r.Output)
}

func renderOutput(output interface{}) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(data)
}

// ToolExecutor manages tool registration and execution
type ToolExecutor struct {
	tools         map[string]*ToolDefinition
	schemas       map[string]*gojsonschema.Schema
	specs         map[string]map[string]interface{}
	mu            sync.RWMutex
	timeout       time.Duration
	maxOutputSize int
}

// Option configures a ToolExecutor
type Option func(*ToolExecutor)

// WithDefaultTimeout overrides DefaultTimeout
func WithDefaultTimeout(d time.Duration) Option {
	return func(te *ToolExecutor) {
		if d > 0 {
			te.timeout = d
		}
	}
}

// WithMaxOutputSize overrides DefaultMaxOutputSize
func WithMaxOutputSize(n int) Option {
	return func(te *ToolExecutor) {
		if n > 0 {
			te.maxOutputSize = n
		}
	}
}

// New creates a new tool executor
func New(opts ...Option) *ToolExecutor {
	te := &ToolExecutor{
		tools:         make(map[string]*ToolDefinition),
		schemas:       make(map[string]*gojsonschema.Schema),
		specs:         make(map[string]map[string]interface{}),
		timeout:       DefaultTimeout,
		maxOutputSize: DefaultMaxOutputSize,
	}
	for _, opt := range opts {
		opt(te)
	}
	return te
}

// RegisterTool registers a new tool, replacing any tool with the same name
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := def.Schema
	if schemaMap == nil {
		schemaMap = parametersSchema(def.Parameters)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema
	te.specs[def.Name] = schemaMap

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// HasTool reports whether name is registered
func (te *ToolExecutor) HasTool(name string) bool {
	return te.GetTool(name) != nil
}

// ListTools returns all registered tool names, sorted
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return sortedKeys(te.tools)
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Specs returns the function tool specs of every registered tool, sorted by name
func (te *ToolExecutor) Specs() []protocol.ToolSpec {
	te.mu.RLock()
	defer te.mu.RUnlock()

	specs := make([]protocol.ToolSpec, 0, len(te.tools))
	for _, name := range sortedKeys(te.tools) {
		def := te.tools[name]
		spec := protocol.NewFunctionTool(def.Name, def.Description, te.specs[name])
		spec.Function.Strict = def.Strict
		specs = append(specs, spec)
	}
	return specs
}

// ExecuteJSON decodes the raw JSON arguments a model sent and executes the tool.
// Empty arguments are treated as an empty object.
func (te *ToolExecutor) ExecuteJSON(ctx context.Context, toolName, arguments string, execCtx *ExecutionContext) ToolResult {
	params := map[string]interface{}{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &params); err != nil {
			observability.RecordToolExecution(toolName, 0, false)
			return ToolResult{
				Success: false,
				Error:   fmt.Sprintf("failed to parse arguments for %s: %v", toolName, err),
			}
		}
	}
	return te.Execute(ctx, toolName, params, execCtx)
}

// Execute executes a tool with the given parameters
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) ToolResult {
	startTime := time.Now()

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	te.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool not found: %s", toolName),
		}
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParameters(schema, params); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	timeout := te.timeout
	if tool.Timeout > 0 {
		timeout = tool.Timeout
	}
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ContextWithExecContext(ctx, execCtx), timeout)
	defer cancel()

	log.Debug().Str("tool", toolName).Dur("timeout", timeout).Msg("Executing tool")

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := tool.Handler(timeoutCtx, params)
		done <- outcome{value: value, err: err}
	}()

	var result ToolResult
	select {
	case out := <-done:
		if out.err != nil {
			result = ToolResult{Success: false, Error: out.err.Error()}
			break
		}
		output, truncated := te.truncateOutput(out.value)
		result = ToolResult{Success: true, Output: output, Truncated: truncated}

	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			result = ToolResult{Success: false, Error: fmt.Sprintf("tool execution cancelled: %v", ctx.Err())}
		} else {
			result = ToolResult{Success: false, Error: fmt.Sprintf("tool execution timeout after %v", timeout)}
		}
	}

	result.Duration = time.Since(startTime)
	observability.RecordToolExecution(toolName, result.Duration, result.Success)

	event := log.Debug()
	if !result.Success {
		event = log.Warn().Str("error", result.Error)
	}
	event.
		Str("tool", toolName).
		Dur("duration", result.Duration).
		Bool("truncated", result.Truncated).
		Msg("Tool execution finished")

	return result
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// parametersSchema builds an object JSON Schema from a parameter list
func parametersSchema(params []ToolParameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}

	for _, param := range params {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			enum := make([]interface{}, len(param.Enum))
			for i, v := range param.Enum {
				enum[i] = v
			}
			paramSchema["enum"] = enum
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}

func (te *ToolExecutor) truncateOutput(output interface{}) (interface{}, bool) {
	str := renderOutput(output)
	if len(str) <= te.maxOutputSize {
		return output, false
	}

	log.Warn().
		Int("original", len(str)).
		Int("truncated", te.maxOutputSize).
		Msg("Output truncated")

	return str[:te.maxOutputSize] + truncationMarker, true
}

func sortedKeys(m map[string]*ToolDefinition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
