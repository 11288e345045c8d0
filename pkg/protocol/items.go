package protocol

import (
	"encoding/json"
	"strings"
)

// Item types used on the wire
const (
	ItemTypeMessage            = "message"
	ItemTypeReasoning          = "reasoning"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
	ItemTypeWebSearchCall      = "web_search_call"
)

// Content entry types
const (
	ContentInputText     = "input_text"
	ContentOutputText    = "output_text"
	ContentSummaryText   = "summary_text"
	ContentReasoningText = "reasoning_text"
)

// AbortedOutput is the synthetic output attached to calls interrupted by a failed attempt
const AbortedOutput = "aborted"

// ContentItem is a typed text fragment inside a message or reasoning item
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WebSearchAction describes what a web_search_call did
type WebSearchAction struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

// ResponseItem is one conversation item in the Responses dialect.
// Type selects which of the remaining fields are meaningful. ID is read from
// server output but never written back, since requests are sent with
// store=false.
type ResponseItem struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// message
	Role    string        `json:"role,omitempty"`
	Content []ContentItem `json:"content,omitempty"`

	// reasoning
	Summary          []ContentItem `json:"summary,omitempty"`
	EncryptedContent string        `json:"encrypted_content,omitempty"`

	// function_call
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`

	// web_search_call
	Status string           `json:"status,omitempty"`
	Action *WebSearchAction `json:"action,omitempty"`
}

type messageWire struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentItem `json:"content"`
}

type reasoningWire struct {
	Type             string        `json:"type"`
	Summary          []ContentItem `json:"summary"`
	Content          []ContentItem `json:"content,omitempty"`
	EncryptedContent string        `json:"encrypted_content,omitempty"`
}

type functionCallWire struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id"`
}

type functionCallOutputWire struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type webSearchCallWire struct {
	Type   string           `json:"type"`
	Status string           `json:"status,omitempty"`
	Action *WebSearchAction `json:"action,omitempty"`
}

// MarshalJSON writes the input shape for the item's type. Required keys are
// always present, even when empty.
func (i ResponseItem) MarshalJSON() ([]byte, error) {
	switch i.Type {
	case ItemTypeMessage:
		return json.Marshal(messageWire{Type: i.Type, Role: i.Role, Content: nonNil(i.Content)})
	case ItemTypeReasoning:
		return json.Marshal(reasoningWire{
			Type:             i.Type,
			Summary:          nonNil(i.Summary),
			Content:          i.Content,
			EncryptedContent: i.EncryptedContent,
		})
	case ItemTypeFunctionCall:
		return json.Marshal(functionCallWire{Type: i.Type, Name: i.Name, Arguments: i.Arguments, CallID: i.CallID})
	case ItemTypeFunctionCallOutput:
		return json.Marshal(functionCallOutputWire{Type: i.Type, CallID: i.CallID, Output: i.Output})
	case ItemTypeWebSearchCall:
		return json.Marshal(webSearchCallWire{Type: i.Type, Status: i.Status, Action: i.Action})
	}

	type plain ResponseItem
	out := plain(i)
	out.ID = ""
	return json.Marshal(out)
}

func nonNil(items []ContentItem) []ContentItem {
	if items == nil {
		return []ContentItem{}
	}
	return items
}

// UserMessage builds a user input message
func UserMessage(text string) ResponseItem {
	return ResponseItem{
		Type:    ItemTypeMessage,
		Role:    "user",
		Content: []ContentItem{{Type: ContentInputText, Text: text}},
	}
}

// AssistantMessage builds an assistant output message
func AssistantMessage(text string) ResponseItem {
	return ResponseItem{
		Type:    ItemTypeMessage,
		Role:    "assistant",
		Content: []ContentItem{{Type: ContentOutputText, Text: text}},
	}
}

// FunctionCall builds a function_call item
func FunctionCall(callID, name, arguments string) ResponseItem {
	return ResponseItem{
		Type:      ItemTypeFunctionCall,
		Name:      name,
		Arguments: arguments,
		CallID:    callID,
	}
}

// FunctionCallOutput builds a function_call_output item
func FunctionCallOutput(callID, output string) ResponseItem {
	return ResponseItem{
		Type:   ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: output,
	}
}

// IsFunctionCall reports whether the item asks the client to run a tool
func (i ResponseItem) IsFunctionCall() bool {
	return i.Type == ItemTypeFunctionCall
}

// Text concatenates the text of all content entries
func (i ResponseItem) Text() string {
	var sb strings.Builder
	for _, c := range i.Content {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// SummaryText concatenates the reasoning summary entries
func (i ResponseItem) SummaryText() string {
	parts := make([]string, 0, len(i.Summary))
	for _, s := range i.Summary {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// IsEmptyInput reports whether items carry nothing worth sending
func IsEmptyInput(items []ResponseItem) bool {
	for _, item := range items {
		if item.Type != ItemTypeMessage {
			return false
		}
		if strings.TrimSpace(item.Text()) != "" {
			return false
		}
	}
	return true
}
