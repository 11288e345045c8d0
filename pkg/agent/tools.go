package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/pkg/protocol"
	"github.com/harun/turnstream/pkg/toolexecutor"
)

// catalogue is the tool set offered to the model for one turn
type catalogue struct {
	specs   []protocol.ToolSpec
	bridged map[string]bool
}

func (c catalogue) names() []string {
	names := make([]string, 0, len(c.specs))
	for _, spec := range c.specs {
		names = append(names, spec.Name())
	}
	return names
}

// toolEnabled reports whether a registered tool may be offered and called
func (e *Executor) toolEnabled(name string) bool {
	if e.cfg.EnableAllTools {
		return true
	}
	return !e.disabled[name]
}

func (e *Executor) bridgeUsable() bool {
	return e.cfg.BridgeEnabled && e.cfg.Bridge != nil && e.cfg.Bridge.Available()
}

// buildCatalogue assembles registered tools, the plan tool, web search and bridged tools.
// Names already taken by an earlier source are not offered again.
func (e *Executor) buildCatalogue(ctx context.Context, logger zerolog.Logger) catalogue {
	cat := catalogue{bridged: make(map[string]bool)}
	seen := make(map[string]bool)
	add := func(spec protocol.ToolSpec) bool {
		name := spec.Name()
		if seen[name] {
			return false
		}
		seen[name] = true
		cat.specs = append(cat.specs, spec)
		return true
	}

	for _, spec := range e.tools.Specs() {
		if spec.Name() == PlanToolName {
			continue
		}
		if !e.toolEnabled(spec.Name()) {
			// keeps a bridged tool of the same name from being offered
			seen[spec.Name()] = true
			continue
		}
		add(spec)
	}
	for _, spec := range e.builtins.Specs() {
		add(spec)
	}

	if e.cfg.WebSearch {
		add(protocol.WebSearchTool())
	}

	if e.bridgeUsable() {
		specs, err := e.cfg.Bridge.Tools(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to list bridged tools")
		}
		for _, spec := range specs {
			if add(spec) {
				cat.bridged[spec.Name()] = true
			}
		}
	}

	return cat
}

// dispatch runs one function call and returns the output text for the model.
// Failures are reported in the output, never as a turn error.
func (e *Executor) dispatch(ctx context.Context, t *turn, call protocol.ResponseItem) (string, bool) {
	start := time.Now()
	execCtx := &toolexecutor.ExecutionContext{
		ConversationID: e.conversationID,
		SubmissionID:   t.submissionID,
		CallID:         call.CallID,
	}

	var (
		output  string
		success bool
		source  string
	)

	switch {
	case e.builtins.HasTool(call.Name):
		source = "builtin"
		result := e.builtins.ExecuteJSON(ctx, call.Name, call.Arguments, execCtx)
		output, success = result.Text(), result.Success
		if success && call.Name == PlanToolName {
			plan := e.plan.Snapshot()
			t.notify(ctx, Notification{Kind: NotifyPlanUpdate, Plan: &plan})
		}

	case e.tools.HasTool(call.Name):
		// Disabled registry tools never fall through to the bridge.
		if !e.toolEnabled(call.Name) {
			source = "disabled"
			output = unavailable(call.Name)
			observability.RecordToolExecution(call.Name, 0, false)
			break
		}
		source = "registry"
		result := e.tools.ExecuteJSON(ctx, call.Name, call.Arguments, execCtx)
		output, success = result.Text(), result.Success

	case e.bridgeUsable():
		source = "bridge"
		out, err := e.cfg.Bridge.Call(ctx, call.Name, call.Arguments)
		if err != nil {
			output = err.Error()
		} else {
			output, success = out, true
		}
		observability.RecordToolExecution(call.Name, time.Since(start), success)

	default:
		source = "unavailable"
		output = unavailable(call.Name)
		observability.RecordToolExecution(call.Name, 0, false)
	}

	status := "success"
	if !success {
		status = "error"
	}
	observability.RecordToolAudit(ctx, call.Name, e.conversationID, status, map[string]interface{}{
		"call_id":     call.CallID,
		"source":      source,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return output, success
}

func unavailable(name string) string {
	return fmt.Sprintf("tool %q is not available", name)
}

// search runs an inline web search for a finished web_search_call item
func (e *Executor) search(ctx context.Context, t *turn, item protocol.ResponseItem) (protocol.ResponseItem, bool) {
	if e.cfg.WebSearcher == nil || item.Action == nil || item.Action.Type != "search" || item.Action.Query == "" {
		return protocol.ResponseItem{}, false
	}

	callID := webSearchCallID(item)
	t.notify(ctx, Notification{Kind: NotifyToolCallBegin, CallID: callID, Tool: "web_search", Query: item.Action.Query})

	start := time.Now()
	output, err := e.cfg.WebSearcher.Search(ctx, item.Action.Query)
	success := err == nil
	if err != nil {
		output = fmt.Sprintf("web search failed: %v", err)
	}
	observability.RecordToolExecution("web_search", time.Since(start), success)

	t.notify(ctx, Notification{Kind: NotifyToolCallEnd, CallID: callID, Tool: "web_search", Query: item.Action.Query, Output: output, Success: success})
	return protocol.FunctionCallOutput(callID, output), true
}
