// Package eventparser decodes server-sent frames of the Responses dialect into
// protocol events.
//
// Unknown frame types are logged and dropped so new benign server events never
// break a client. An explicit response.failed frame is always surfaced as an
// error. response.completed is returned like any other event; holding it until
// the transport closes is the caller's job.
package eventparser

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/responses"
	"github.com/rs/zerolog"

	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/pkg/llmerr"
	"github.com/harun/turnstream/pkg/protocol"
)

// Wire frame types
const (
	TypeCreated                 = "response.created"
	TypeOutputItemDone          = "response.output_item.done"
	TypeOutputItemAdded         = "response.output_item.added"
	TypeOutputTextDelta         = "response.output_text.delta"
	TypeReasoningSummaryDelta   = "response.reasoning_summary_text.delta"
	TypeReasoningTextDelta      = "response.reasoning_text.delta"
	TypeReasoningSummaryPartAdd = "response.reasoning_summary_part.added"
	TypeFailed                  = "response.failed"
	TypeCompleted               = "response.completed"
)

const (
	usageLimitCode        = "usage_limit_reached"
	insufficientQuotaCode = "insufficient_quota"
	defaultFailureMessage = "response.failed event received"

	outcomeMapped  = "mapped"
	outcomeIgnored = "ignored"
	outcomeUnknown = "unknown"
	outcomeFailed  = "failed"
)

// ignoredTypes are progress and acknowledgement frames that carry nothing the
// client needs; the finalized data arrives in other frames.
var ignoredTypes = map[string]struct{}{
	"response.in_progress":                   {},
	"response.queued":                        {},
	"response.output_text.done":              {},
	"response.output_text.annotation.added":  {},
	"response.content_part.added":            {},
	"response.content_part.done":             {},
	"response.function_call_arguments.delta": {},
	"response.function_call_arguments.done":  {},
	"response.custom_tool_call_input.delta":  {},
	"response.custom_tool_call_input.done":   {},
	"response.reasoning_summary_text.done":   {},
	"response.reasoning_summary_part.done":   {},
	"response.reasoning_text.done":           {},
	"response.web_search_call.in_progress":   {},
	"response.web_search_call.searching":     {},
	"response.web_search_call.completed":     {},
}

// IsIgnored reports whether frames of the given type are dropped on purpose
func IsIgnored(wireType string) bool {
	_, ok := ignoredTypes[wireType]
	return ok
}

// Envelope is the JSON shape shared by every frame
type Envelope struct {
	Type     string          `json:"type"`
	Response json.RawMessage `json:"response,omitempty"`
	Item     json.RawMessage `json:"item,omitempty"`
	Delta    string          `json:"delta,omitempty"`
}

// Decode parses one frame payload. It returns nil for empty or malformed input;
// callers skip such frames.
func Decode(raw []byte) *Envelope {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return &env
}

type failedResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    string `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type completedResponse struct {
	ID    string          `json:"id"`
	Usage json.RawMessage `json:"usage"`
}

type addedItem struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Parser classifies envelopes into events
type Parser struct {
	logger zerolog.Logger
}

// New creates a parser that logs skipped frames at debug level
func New(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger.With().Str("component", "eventparser").Logger()}
}

// Classify maps one envelope to zero or one events. A response.failed frame
// returns an *llmerr.Error and no events.
func (p *Parser) Classify(env *Envelope) ([]protocol.Event, error) {
	if env == nil {
		return nil, nil
	}

	events, outcome, err := p.classify(env)
	observability.RecordWireEvent(env.Type, outcome)
	return events, err
}

func (p *Parser) classify(env *Envelope) ([]protocol.Event, string, error) {
	switch env.Type {
	case TypeCreated:
		return one(protocol.Created())

	case TypeOutputItemDone:
		if isAbsent(env.Item) {
			return nil, outcomeIgnored, nil
		}
		var item protocol.ResponseItem
		if err := json.Unmarshal(env.Item, &item); err != nil {
			p.logger.Debug().Err(err).Str("type", env.Type).Msg("Skipping undecodable output item")
			return nil, outcomeIgnored, nil
		}
		return one(protocol.OutputItemDone(item))

	case TypeOutputTextDelta:
		if env.Delta == "" {
			return nil, outcomeIgnored, nil
		}
		return one(protocol.OutputTextDelta(env.Delta))

	case TypeReasoningSummaryDelta:
		if env.Delta == "" {
			return nil, outcomeIgnored, nil
		}
		return one(protocol.ReasoningSummaryDelta(env.Delta))

	case TypeReasoningTextDelta:
		if env.Delta == "" {
			return nil, outcomeIgnored, nil
		}
		return one(protocol.ReasoningContentDelta(env.Delta))

	case TypeReasoningSummaryPartAdd:
		return one(protocol.ReasoningSummaryPartAdded())

	case TypeOutputItemAdded:
		if isAbsent(env.Item) {
			return nil, outcomeIgnored, nil
		}
		var item addedItem
		if err := json.Unmarshal(env.Item, &item); err != nil || item.Type != protocol.ItemTypeWebSearchCall {
			return nil, outcomeIgnored, nil
		}
		return one(protocol.WebSearchCallBegin(item.ID))

	case TypeFailed:
		return nil, outcomeFailed, failure(env.Response)

	case TypeCompleted:
		return p.completed(env)
	}

	if IsIgnored(env.Type) {
		return nil, outcomeIgnored, nil
	}

	p.logger.Debug().Str("type", env.Type).Msg("Ignoring unknown stream event")
	return nil, outcomeUnknown, nil
}

func (p *Parser) completed(env *Envelope) ([]protocol.Event, string, error) {
	var resp completedResponse
	if !isAbsent(env.Response) {
		if err := json.Unmarshal(env.Response, &resp); err != nil {
			p.logger.Debug().Err(err).Msg("Malformed completed payload")
		}
	}

	var usage *protocol.TokenUsage
	if !isAbsent(resp.Usage) {
		var wire responses.ResponseUsage
		if err := json.Unmarshal(resp.Usage, &wire); err != nil {
			p.logger.Debug().Err(err).Msg("Malformed usage payload")
		} else {
			usage = &protocol.TokenUsage{
				InputTokens:           wire.InputTokens,
				CachedInputTokens:     wire.InputTokensDetails.CachedTokens,
				OutputTokens:          wire.OutputTokens,
				ReasoningOutputTokens: wire.OutputTokensDetails.ReasoningTokens,
				TotalTokens:           wire.TotalTokens,
			}
		}
	}

	return one(protocol.Completed(resp.ID, usage))
}

func failure(raw json.RawMessage) *llmerr.Error {
	e := llmerr.New(llmerr.KindExplicitFailure, defaultFailureMessage)
	if isAbsent(raw) {
		return e
	}

	var resp failedResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Error == nil {
		return e
	}

	if resp.Error.Message != "" {
		e.Message = resp.Error.Message
	}
	e.Code = resp.Error.Code
	if e.Code == "" {
		e.Code = resp.Error.Type
	}
	if e.Code == usageLimitCode || e.Code == insufficientQuotaCode {
		e.Kind = llmerr.KindUsageLimit
	}
	if d, ok := ParseRetryAfter(e.Message); ok {
		e.RetryAfter = d
	}
	return e
}

var retryAfterPattern = regexp.MustCompile(`(?i)\bin\s*(\d+(?:\.\d+)?)\s*(ms|s)\b`)

// ParseRetryAfter extracts a wait hint such as "try again in 1.5s" or "in 200ms"
func ParseRetryAfter(message string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if strings.EqualFold(m[2], "ms") {
		unit = time.Millisecond
	}
	return time.Duration(value * float64(unit)), true
}

func one(ev protocol.Event) ([]protocol.Event, string, error) {
	return []protocol.Event{ev}, outcomeMapped, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
