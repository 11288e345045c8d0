package protocol

import "fmt"

// EventKind discriminates the Event union
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventOutputItemDone
	EventOutputTextDelta
	EventReasoningSummaryDelta
	EventReasoningContentDelta
	EventReasoningSummaryPartAdded
	EventWebSearchCallBegin
	EventCompleted
	EventRateLimits
)

var eventKindNames = map[EventKind]string{
	EventCreated:                   "created",
	EventOutputItemDone:            "output_item_done",
	EventOutputTextDelta:           "output_text_delta",
	EventReasoningSummaryDelta:     "reasoning_summary_delta",
	EventReasoningContentDelta:     "reasoning_content_delta",
	EventReasoningSummaryPartAdded: "reasoning_summary_part_added",
	EventWebSearchCallBegin:        "web_search_call_begin",
	EventCompleted:                 "completed",
	EventRateLimits:                "rate_limits",
}

// String returns the snake_case name of the kind
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event_kind(%d)", int(k))
}

// Event is one typed notification decoded from the wire protocol.
// Only the fields belonging to Kind are populated.
type Event struct {
	Kind EventKind

	// OutputItemDone
	Item *ResponseItem

	// OutputTextDelta, ReasoningSummaryDelta, ReasoningContentDelta
	Delta string

	// WebSearchCallBegin
	CallID string

	// Completed
	ResponseID string
	Usage      *TokenUsage

	// RateLimits
	RateLimits *RateLimitSnapshot
}

// Created returns a lifecycle-start event
func Created() Event {
	return Event{Kind: EventCreated}
}

// OutputItemDone wraps a finalized output item
func OutputItemDone(item ResponseItem) Event {
	return Event{Kind: EventOutputItemDone, Item: &item}
}

// OutputTextDelta carries an assistant text fragment
func OutputTextDelta(text string) Event {
	return Event{Kind: EventOutputTextDelta, Delta: text}
}

// ReasoningSummaryDelta carries a reasoning summary fragment
func ReasoningSummaryDelta(text string) Event {
	return Event{Kind: EventReasoningSummaryDelta, Delta: text}
}

// ReasoningContentDelta carries a raw reasoning fragment
func ReasoningContentDelta(text string) Event {
	return Event{Kind: EventReasoningContentDelta, Delta: text}
}

// ReasoningSummaryPartAdded marks a boundary between summary sections
func ReasoningSummaryPartAdded() Event {
	return Event{Kind: EventReasoningSummaryPartAdded}
}

// WebSearchCallBegin announces a server-side web search
func WebSearchCallBegin(callID string) Event {
	return Event{Kind: EventWebSearchCallBegin, CallID: callID}
}

// Completed is the terminal success event of a stream
func Completed(responseID string, usage *TokenUsage) Event {
	return Event{Kind: EventCompleted, ResponseID: responseID, Usage: usage}
}

// RateLimits carries the snapshot extracted from response headers
func RateLimits(snapshot RateLimitSnapshot) Event {
	return Event{Kind: EventRateLimits, RateLimits: &snapshot}
}
