package modelclient

import (
	"strings"

	"github.com/harun/turnstream/pkg/protocol"
)

const (
	outputSchemaName       = "turnstream_output_schema"
	includeEncryptedReason = "reasoning.encrypted_content"
)

type requestPayload struct {
	Model             string                  `json:"model"`
	Instructions      string                  `json:"instructions"`
	Input             []protocol.ResponseItem `json:"input"`
	Tools             []toolParam             `json:"tools"`
	ToolChoice        string                  `json:"tool_choice"`
	ParallelToolCalls bool                    `json:"parallel_tool_calls"`
	Reasoning         *reasoningParam         `json:"reasoning,omitempty"`
	Store             bool                    `json:"store"`
	Stream            bool                    `json:"stream"`
	Include           []string                `json:"include"`
	PromptCacheKey    string                  `json:"prompt_cache_key,omitempty"`
	Text              *textParam              `json:"text,omitempty"`
}

type reasoningParam struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type textParam struct {
	Verbosity string      `json:"verbosity,omitempty"`
	Format    *textFormat `json:"format,omitempty"`
}

type textFormat struct {
	Type   string                 `json:"type"`
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

// toolParam is the provider's flat tool shape: one object per tool, kind in "type"
type toolParam struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Strict      *bool                  `json:"strict,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

func convertTools(tools []protocol.ToolSpec) []toolParam {
	params := make([]toolParam, 0, len(tools))
	for _, tool := range tools {
		switch tool.Kind {
		case protocol.ToolKindFunction:
			if tool.Function == nil {
				continue
			}
			strict := tool.Function.Strict
			parameters := tool.Function.Parameters
			if parameters == nil {
				parameters = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
			}
			params = append(params, toolParam{
				Type:        string(protocol.ToolKindFunction),
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Strict:      &strict,
				Parameters:  parameters,
			})
		case protocol.ToolKindWebSearch:
			params = append(params, toolParam{Type: string(protocol.ToolKindWebSearch)})
		}
	}
	return params
}

func resolveInstructions(family protocol.ModelFamily, prompt *protocol.Prompt) string {
	base := prompt.BaseInstructionsOverride
	if strings.TrimSpace(base) == "" {
		base = family.BaseInstructions
	}
	user := strings.TrimSpace(prompt.UserInstructions)
	if user == "" {
		return base
	}
	if base == "" {
		return user
	}
	return base + "\n\n" + user
}

func (c *Client) buildPayload(prompt *protocol.Prompt) requestPayload {
	payload := requestPayload{
		Model:             c.cfg.Model,
		Instructions:      resolveInstructions(c.family, prompt),
		Input:             prompt.Input,
		Tools:             convertTools(prompt.Tools),
		ToolChoice:        "auto",
		ParallelToolCalls: false,
		Store:             false,
		Stream:            true,
		Include:           []string{},
		PromptCacheKey:    c.conversationID,
	}

	if c.family.SupportsReasoningSummaries {
		payload.Reasoning = &reasoningParam{
			Effort:  c.cfg.ReasoningEffort,
			Summary: c.cfg.ReasoningSummary,
		}
		payload.Include = append(payload.Include, includeEncryptedReason)
	}

	verbosity := ""
	if c.family.SupportsVerbosity {
		verbosity = c.cfg.Verbosity
	}
	if verbosity != "" || prompt.OutputSchema != nil {
		text := &textParam{Verbosity: verbosity}
		if prompt.OutputSchema != nil {
			text.Format = &textFormat{
				Type:   "json_schema",
				Name:   outputSchemaName,
				Strict: true,
				Schema: prompt.OutputSchema,
			}
		}
		payload.Text = text
	}

	return payload
}
