package protocol

// ToolKind discriminates the ToolSpec union
type ToolKind string

const (
	ToolKindFunction  ToolKind = "function"
	ToolKindWebSearch ToolKind = "web_search"
)

// FunctionTool describes a client-executed function tool
type FunctionTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Strict      bool                   `json:"strict"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolSpec is the internal tool representation; Function is set only for ToolKindFunction
type ToolSpec struct {
	Kind     ToolKind
	Function *FunctionTool
}

// Name returns the dispatch name of the tool
func (t ToolSpec) Name() string {
	if t.Kind == ToolKindFunction && t.Function != nil {
		return t.Function.Name
	}
	return string(t.Kind)
}

// NewFunctionTool wraps a function definition
func NewFunctionTool(name, description string, parameters map[string]interface{}) ToolSpec {
	return ToolSpec{
		Kind: ToolKindFunction,
		Function: &FunctionTool{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// WebSearchTool returns the server-side web search tool
func WebSearchTool() ToolSpec {
	return ToolSpec{Kind: ToolKindWebSearch}
}

// Prompt is everything the streaming client needs for one request
type Prompt struct {
	Input []ResponseItem
	Tools []ToolSpec

	// BaseInstructionsOverride replaces the model family's default instructions
	BaseInstructionsOverride string

	// UserInstructions are appended after the base instructions
	UserInstructions string

	// OutputSchema constrains the final assistant message to a JSON schema
	OutputSchema map[string]interface{}
}

// UnpairedCalls returns the call ids of function_call items that have no output
func UnpairedCalls(items []ResponseItem) []string {
	outputs := make(map[string]bool)
	for _, item := range items {
		if item.Type == ItemTypeFunctionCallOutput {
			outputs[item.CallID] = true
		}
	}

	var missing []string
	seen := make(map[string]bool)
	for _, item := range items {
		if item.Type != ItemTypeFunctionCall || outputs[item.CallID] || seen[item.CallID] {
			continue
		}
		seen[item.CallID] = true
		missing = append(missing, item.CallID)
	}
	return missing
}
