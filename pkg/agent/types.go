package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/turnstream/pkg/protocol"
	"github.com/harun/turnstream/pkg/stream"
)

// ModelClient opens one response stream per call
type ModelClient interface {
	Stream(ctx context.Context, prompt *protocol.Prompt) (*stream.Stream, error)
}

// Bridge exposes tools hosted outside the process. Callers must check
// Available before relying on it.
type Bridge interface {
	Available() bool
	Tools(ctx context.Context) ([]protocol.ToolSpec, error)
	Call(ctx context.Context, name, arguments string) (string, error)
}

// WebSearcher runs a search requested by a web_search_call item
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// ItemMapper turns a finished non-tool output item into notifications
type ItemMapper func(item protocol.ResponseItem) []Notification

// TurnState is the lifecycle state of a turn
type TurnState int

const (
	StatePending TurnState = iota
	StateStreaming
	StateRetrying
	StateCompleted
	StateFailed
	StateCancelled
)

var turnStateNames = map[TurnState]string{
	StatePending:   "pending",
	StateStreaming: "streaming",
	StateRetrying:  "retrying",
	StateCompleted: "completed",
	StateFailed:    "failed",
	StateCancelled: "cancelled",
}

func (s TurnState) String() string {
	if name, ok := turnStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("turn_state(%d)", int(s))
}

// Terminal reports whether no further transition can happen
func (s TurnState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// TurnInput is what the caller submits for one turn
type TurnInput struct {
	// SubmissionID identifies the turn; a nanoid is generated when empty
	SubmissionID string

	// Items is the conversation history followed by the new user input
	Items []protocol.ResponseItem
}

// TurnResult is the outcome of a successful turn
type TurnResult struct {
	SubmissionID string
	ResponseID   string

	// Items are the pending responses: one function_call_output per executed call
	Items []protocol.ResponseItem

	// Output are the items the model produced in the successful attempt
	Output []protocol.ResponseItem

	Usage    *protocol.TokenUsage
	Attempts int
	State    TurnState
}

// LastAgentMessage returns the text of the last assistant message in Output
func (r *TurnResult) LastAgentMessage() string {
	if r == nil {
		return ""
	}
	for i := len(r.Output) - 1; i >= 0; i-- {
		item := r.Output[i]
		if item.Type == protocol.ItemTypeMessage && item.Role == "assistant" {
			return item.Text()
		}
	}
	return ""
}

// TurnError is returned when a turn ends without a result
type TurnError struct {
	SubmissionID string
	State        TurnState
	Attempts     int
	Err          error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s %s after %d attempt(s): %v", e.SubmissionID, e.State, e.Attempts, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// ConversationResult is the outcome of RunConversation
type ConversationResult struct {
	// Items is the full history: the input followed by every turn's output and tool outputs
	Items []protocol.ResponseItem

	Turns            int
	Usage            *protocol.TokenUsage
	LastAgentMessage string
}

// NotificationKind discriminates Notification
type NotificationKind string

const (
	NotifyTaskStarted           NotificationKind = "task_started"
	NotifyTaskComplete          NotificationKind = "task_complete"
	NotifyCreated               NotificationKind = "created"
	NotifyRateLimits            NotificationKind = "rate_limits"
	NotifyAgentMessageDelta     NotificationKind = "agent_message_delta"
	NotifyReasoningDelta        NotificationKind = "agent_reasoning_delta"
	NotifyReasoningContentDelta NotificationKind = "agent_reasoning_raw_content_delta"
	NotifyReasoningSectionBreak NotificationKind = "agent_reasoning_section_break"
	NotifyAgentMessage          NotificationKind = "agent_message"
	NotifyAgentReasoning        NotificationKind = "agent_reasoning"
	NotifyWebSearchBegin        NotificationKind = "web_search_begin"
	NotifyWebSearchEnd          NotificationKind = "web_search_end"
	NotifyToolCallBegin         NotificationKind = "tool_call_begin"
	NotifyToolCallEnd           NotificationKind = "tool_call_end"
	NotifyPlanUpdate            NotificationKind = "plan_update"
	NotifyTokenCount            NotificationKind = "token_count"
	NotifyRetrying              NotificationKind = "retrying"
	NotifyError                 NotificationKind = "error"
)

// Notification is one message to the host. Only the fields belonging to Kind are set.
type Notification struct {
	Kind         NotificationKind
	SubmissionID string

	// deltas
	Delta string

	// AgentMessage, AgentReasoning, Error, TaskComplete
	Text string

	// WebSearchBegin, WebSearchEnd, ToolCallBegin, ToolCallEnd
	CallID    string
	Tool      string
	Arguments string
	Query     string
	Output    string
	Success   bool

	// PlanUpdate
	Plan *Plan

	// TokenCount, TaskComplete
	Usage      *protocol.TokenUsage
	ResponseID string

	// RateLimits
	RateLimits *protocol.RateLimitSnapshot

	// Retrying
	Attempt    int
	MaxRetries int
	Delay      time.Duration

	// Retrying, Error
	Err error
}

// Sink receives notifications in the order they happen
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(n Notification)

// Notify calls f
func (f SinkFunc) Notify(_ context.Context, n Notification) {
	f(n)
}

type discardSink struct{}

func (discardSink) Notify(context.Context, Notification) {}
