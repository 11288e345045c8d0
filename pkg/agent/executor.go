package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/internal/tracing"
	"github.com/harun/turnstream/pkg/backoff"
	"github.com/harun/turnstream/pkg/llmerr"
	"github.com/harun/turnstream/pkg/protocol"
	"github.com/harun/turnstream/pkg/toolexecutor"
)

const (
	tracerName = "turnstream/agent"

	// DefaultMaxRetries is used when Config.MaxRetries is zero
	DefaultMaxRetries = 3

	// DefaultMaxTurns bounds RunConversation when Config.MaxTurns is zero
	DefaultMaxTurns = 10
)

// ErrMaxTurns is returned by RunConversation when the model keeps calling tools
var ErrMaxTurns = errors.New("maximum tool execution turns exceeded")

// Config configures an Executor
type Config struct {
	// Client streams model responses. Required.
	Client ModelClient

	// Tools are the registered capability tools; nil means none
	Tools          *toolexecutor.ToolExecutor
	DisabledTools  []string
	EnableAllTools bool

	// WebSearch offers the server-side web_search tool. WebSearcher, when set,
	// answers finished web_search_call items inline.
	WebSearch   bool
	WebSearcher WebSearcher

	// Bridge serves tool names the registry does not know, when BridgeEnabled
	Bridge        Bridge
	BridgeEnabled bool

	Plan *PlanTracker

	// MaxRetries is the number of whole-turn retries after the first attempt.
	// Zero uses DefaultMaxRetries, negative disables retrying.
	MaxRetries int
	Backoff    backoff.Policy
	Sleep      func(ctx context.Context, d time.Duration) error

	MaxTurns int

	// Model labels metrics and spans
	Model          string
	ConversationID string

	BaseInstructions string
	UserInstructions string
	OutputSchema     map[string]interface{}

	ItemMapper ItemMapper
	Logger     *zerolog.Logger
}

// Executor runs turns against a model client
type Executor struct {
	cfg            Config
	tools          *toolexecutor.ToolExecutor
	builtins       *toolexecutor.ToolExecutor
	disabled       map[string]bool
	plan           *PlanTracker
	mapper         ItemMapper
	sleep          func(ctx context.Context, d time.Duration) error
	maxRetries     int
	maxTurns       int
	conversationID string
	outputSchema   *gojsonschema.Schema
	logger         zerolog.Logger
}

type conversationIDer interface {
	ConversationID() string
}

// NewExecutor validates cfg and builds an executor
func NewExecutor(cfg Config) (*Executor, error) {
	observability.EnsureRegistered()

	if cfg.Client == nil {
		return nil, fmt.Errorf("model client is required")
	}

	e := &Executor{
		cfg:        cfg,
		tools:      cfg.Tools,
		builtins:   toolexecutor.New(),
		disabled:   make(map[string]bool, len(cfg.DisabledTools)),
		plan:       cfg.Plan,
		mapper:     cfg.ItemMapper,
		sleep:      cfg.Sleep,
		maxRetries: cfg.MaxRetries,
		maxTurns:   cfg.MaxTurns,
		logger:     log.Logger,
	}

	if e.tools == nil {
		e.tools = toolexecutor.New()
	}
	for _, name := range cfg.DisabledTools {
		e.disabled[name] = true
	}
	if e.plan == nil {
		e.plan = NewPlanTracker()
	}
	if e.mapper == nil {
		e.mapper = DefaultItemMapper
	}
	if e.sleep == nil {
		e.sleep = backoff.Sleep
	}
	if e.cfg.Backoff.BaseDelay <= 0 {
		e.cfg.Backoff = backoff.DefaultPolicy()
	}
	switch {
	case e.maxRetries == 0:
		e.maxRetries = DefaultMaxRetries
	case e.maxRetries < 0:
		e.maxRetries = 0
	}
	if e.maxTurns <= 0 {
		e.maxTurns = DefaultMaxTurns
	}
	if cfg.Logger != nil {
		e.logger = *cfg.Logger
	}
	e.logger = e.logger.With().Str("component", "agent").Logger()

	e.conversationID = cfg.ConversationID
	if e.conversationID == "" {
		if c, ok := cfg.Client.(conversationIDer); ok {
			e.conversationID = c.ConversationID()
		}
	}
	if e.conversationID == "" {
		e.conversationID = tracing.NewConversationID()
	}

	if err := e.builtins.RegisterTool(planTool(e.plan)); err != nil {
		return nil, fmt.Errorf("failed to register plan tool: %w", err)
	}

	if cfg.OutputSchema != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(cfg.OutputSchema))
		if err != nil {
			return nil, fmt.Errorf("invalid output schema: %w", err)
		}
		e.outputSchema = schema
	}

	return e, nil
}

// ConversationID returns the id turns are reported under
func (e *Executor) ConversationID() string {
	return e.conversationID
}

// Plan returns the plan tracker fed by update_plan
func (e *Executor) Plan() *PlanTracker {
	return e.plan
}

// turn is the per-call state of RunTurn
type turn struct {
	submissionID string
	sink         Sink
	state        TurnState
	attempts     int
	logger       zerolog.Logger
}

func (t *turn) notify(ctx context.Context, n Notification) {
	n.SubmissionID = t.submissionID
	t.sink.Notify(ctx, n)
}

func (t *turn) transition(to TurnState) {
	t.logger.Debug().
		Str("from", t.state.String()).
		Str("to", to.String()).
		Int("attempt", t.attempts).
		Msg("Turn state changed")
	t.state = to
}

// RunTurn sends input to the model, executes requested tools and returns the
// tool outputs once the response completes. Retryable stream failures restart
// the whole attempt, re-repairing the input each time.
func (e *Executor) RunTurn(ctx context.Context, input TurnInput, sink Sink) (*TurnResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		sink = discardSink{}
	}

	submissionID := input.SubmissionID
	if submissionID == "" {
		id, err := gonanoid.New()
		if err != nil {
			id = tracing.NewRunID()
		}
		submissionID = id
	}

	ctx = tracing.NewTurnContext(ctx, e.conversationID, submissionID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.turn",
		attribute.String("submission.id", submissionID),
		attribute.String("model", e.cfg.Model),
	)
	logger := tracing.LoggerFromContext(ctx, e.logger)

	t := &turn{submissionID: submissionID, sink: sink, state: StatePending, logger: logger}
	start := time.Now()

	t.notify(ctx, Notification{Kind: NotifyTaskStarted})
	cat := e.buildCatalogue(ctx, logger)
	logger.Debug().Strs("tools", cat.names()).Int("bridged", len(cat.bridged)).Msg("Starting turn")

	result, err := e.runAttempts(ctx, t, input.Items, cat)
	duration := time.Since(start)
	observability.RecordTurn(e.cfg.Model, t.state.String(), duration)

	if err != nil {
		span.SetAttributes(attribute.Int("attempts", t.attempts))
		tracing.EndSpan(span, err)
		observability.RecordTurnAudit(ctx, e.conversationID, t.state.String(), map[string]interface{}{
			"submission_id": submissionID,
			"attempts":      t.attempts,
			"error":         err.Error(),
		})
		logger.Error().Err(err).Str("state", t.state.String()).Int("attempts", t.attempts).Msg("Turn failed")
		t.notify(ctx, Notification{Kind: NotifyError, Text: err.Error(), Err: err})
		return nil, &TurnError{SubmissionID: submissionID, State: t.state, Attempts: t.attempts, Err: err}
	}

	result.SubmissionID = submissionID
	result.Attempts = t.attempts
	result.State = t.state

	if result.Usage != nil {
		observability.RecordTokens(e.cfg.Model,
			result.Usage.InputTokens,
			result.Usage.CachedInputTokens,
			result.Usage.OutputTokens,
			result.Usage.ReasoningOutputTokens,
		)
		t.notify(ctx, Notification{Kind: NotifyTokenCount, Usage: result.Usage, ResponseID: result.ResponseID})
	}

	lastMessage := result.LastAgentMessage()
	if e.outputSchema != nil && lastMessage != "" {
		if err := validateOutput(e.outputSchema, lastMessage); err != nil {
			logger.Warn().Err(err).Msg("Final message does not match the output schema")
			t.notify(ctx, Notification{Kind: NotifyError, Text: err.Error(), Err: err})
		}
	}

	span.SetAttributes(attribute.Int("attempts", t.attempts), attribute.String("response.id", result.ResponseID))
	tracing.EndSpan(span, nil)
	observability.RecordTurnAudit(ctx, e.conversationID, t.state.String(), map[string]interface{}{
		"submission_id": submissionID,
		"attempts":      t.attempts,
		"response_id":   result.ResponseID,
		"tool_outputs":  len(result.Items),
	})
	logger.Info().
		Str("response_id", result.ResponseID).
		Int("attempts", t.attempts).
		Int("tool_outputs", len(result.Items)).
		Dur("duration", duration).
		Msg("Turn completed")

	t.notify(ctx, Notification{Kind: NotifyTaskComplete, Text: lastMessage, Usage: result.Usage, ResponseID: result.ResponseID})
	return result, nil
}

func (e *Executor) runAttempts(ctx context.Context, t *turn, items []protocol.ResponseItem, cat catalogue) (*TurnResult, error) {
	for attempt := 0; ; attempt++ {
		t.attempts = attempt + 1
		t.transition(StateStreaming)

		result, err := e.runAttempt(ctx, t, e.buildPrompt(items, cat))
		if err == nil {
			t.transition(StateCompleted)
			return result, nil
		}

		kind := llmerr.KindOf(err)
		if ctx.Err() != nil || kind == llmerr.KindCancelled {
			t.transition(StateCancelled)
			return nil, err
		}
		if !retryableTurnError(kind) || attempt >= e.maxRetries {
			t.transition(StateFailed)
			return nil, err
		}

		hint, _ := llmerr.RetryAfterOf(err)
		delay := e.cfg.Backoff.DelayWithHint(attempt, hint)
		t.transition(StateRetrying)
		observability.RecordRetry("turn", kind.String())
		t.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", e.maxRetries).
			Dur("delay", delay).
			Msg("Turn attempt failed, retrying")
		t.notify(ctx, Notification{
			Kind:       NotifyRetrying,
			Text:       err.Error(),
			Err:        err,
			Attempt:    attempt + 1,
			MaxRetries: e.maxRetries,
			Delay:      delay,
		})

		if err := e.sleep(ctx, delay); err != nil {
			t.transition(StateCancelled)
			return nil, llmerr.Wrap(llmerr.KindCancelled, err, "cancelled while waiting to retry")
		}
	}
}

// retryableTurnError excludes failures a new attempt cannot fix
func retryableTurnError(kind llmerr.Kind) bool {
	switch kind {
	case llmerr.KindCancelled, llmerr.KindAuthentication, llmerr.KindUsageLimit,
		llmerr.KindValidation, llmerr.KindClient:
		return false
	}
	return true
}

func (e *Executor) buildPrompt(items []protocol.ResponseItem, cat catalogue) *protocol.Prompt {
	return &protocol.Prompt{
		Input:                    RepairInput(items),
		Tools:                    cat.specs,
		BaseInstructionsOverride: e.cfg.BaseInstructions,
		UserInstructions:         e.cfg.UserInstructions,
		OutputSchema:             e.cfg.OutputSchema,
	}
}

// RepairInput returns items with an "aborted" function_call_output prepended
// for every function_call that has no output
func RepairInput(items []protocol.ResponseItem) []protocol.ResponseItem {
	missing := protocol.UnpairedCalls(items)
	repaired := make([]protocol.ResponseItem, 0, len(missing)+len(items))
	for _, callID := range missing {
		repaired = append(repaired, protocol.FunctionCallOutput(callID, protocol.AbortedOutput))
	}
	return append(repaired, items...)
}

// runAttempt consumes one stream until Completed
func (e *Executor) runAttempt(ctx context.Context, t *turn, prompt *protocol.Prompt) (*TurnResult, error) {
	s, err := e.cfg.Client.Stream(ctx, prompt)
	if err != nil {
		return nil, err
	}

	completed := false
	defer func() {
		if !completed {
			s.Abort()
		}
	}()

	result := &TurnResult{}
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, llmerr.New(llmerr.KindStreamClosed, "stream closed before response.completed")
		}
		if err != nil {
			return nil, err
		}

		switch ev.Kind {
		case protocol.EventCreated:
			t.notify(ctx, Notification{Kind: NotifyCreated})
		case protocol.EventRateLimits:
			t.notify(ctx, Notification{Kind: NotifyRateLimits, RateLimits: ev.RateLimits})
		case protocol.EventReasoningSummaryPartAdded:
			t.notify(ctx, Notification{Kind: NotifyReasoningSectionBreak})
		case protocol.EventOutputTextDelta:
			t.notify(ctx, Notification{Kind: NotifyAgentMessageDelta, Delta: ev.Delta})
		case protocol.EventReasoningSummaryDelta:
			t.notify(ctx, Notification{Kind: NotifyReasoningDelta, Delta: ev.Delta})
		case protocol.EventReasoningContentDelta:
			t.notify(ctx, Notification{Kind: NotifyReasoningContentDelta, Delta: ev.Delta})
		case protocol.EventWebSearchCallBegin:
			t.notify(ctx, Notification{Kind: NotifyWebSearchBegin, CallID: ev.CallID})
		case protocol.EventOutputItemDone:
			if ev.Item != nil {
				e.handleItem(ctx, t, *ev.Item, result)
			}
		case protocol.EventCompleted:
			completed = true
			result.ResponseID = ev.ResponseID
			if ev.Usage != nil {
				result.Usage = &protocol.TokenUsage{}
				result.Usage.Add(ev.Usage)
			}
			return result, nil
		}
	}
}

func (e *Executor) handleItem(ctx context.Context, t *turn, item protocol.ResponseItem, result *TurnResult) {
	result.Output = append(result.Output, item)

	if item.IsFunctionCall() {
		t.notify(ctx, Notification{Kind: NotifyToolCallBegin, CallID: item.CallID, Tool: item.Name, Arguments: item.Arguments})
		output, success := e.dispatch(ctx, t, item)
		t.notify(ctx, Notification{Kind: NotifyToolCallEnd, CallID: item.CallID, Tool: item.Name, Output: output, Success: success})
		result.Items = append(result.Items, protocol.FunctionCallOutput(item.CallID, output))
		return
	}

	for _, n := range e.mapper(item) {
		t.notify(ctx, n)
	}

	if item.Type == protocol.ItemTypeWebSearchCall {
		if output, ok := e.search(ctx, t, item); ok {
			result.Items = append(result.Items, output)
		}
	}
}

func validateOutput(schema *gojsonschema.Schema, message string) error {
	res, err := schema.Validate(gojsonschema.NewStringLoader(message))
	if err != nil {
		return fmt.Errorf("final message is not valid JSON: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("final message does not match output schema: %v", msgs)
	}
	return nil
}
