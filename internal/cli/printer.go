package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/harun/turnstream/pkg/agent"
)

const maxPrintedOutput = 200

// printer renders notifications as they arrive
type printer struct {
	mu       sync.Mutex
	out      io.Writer
	json     bool
	verbose  bool
	streamed bool
}

func newPrinter(out io.Writer, asJSON, verbose bool) *printer {
	return &printer{out: out, json: asJSON, verbose: verbose}
}

type jsonNotification struct {
	Kind         agent.NotificationKind `json:"kind"`
	SubmissionID string                 `json:"submission_id,omitempty"`
	Delta        string                 `json:"delta,omitempty"`
	Text         string                 `json:"text,omitempty"`
	CallID       string                 `json:"call_id,omitempty"`
	Tool         string                 `json:"tool,omitempty"`
	Arguments    string                 `json:"arguments,omitempty"`
	Query        string                 `json:"query,omitempty"`
	Output       string                 `json:"output,omitempty"`
	Success      *bool                  `json:"success,omitempty"`
	Plan         *agent.Plan            `json:"plan,omitempty"`
	Usage        interface{}            `json:"usage,omitempty"`
	ResponseID   string                 `json:"response_id,omitempty"`
	Attempt      int                    `json:"attempt,omitempty"`
	MaxRetries   int                    `json:"max_retries,omitempty"`
	DelayMs      int64                  `json:"delay_ms,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

func (p *printer) Notify(ctx context.Context, n agent.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		p.writeJSON(n)
		return
	}

	switch n.Kind {
	case agent.NotifyAgentMessageDelta:
		p.streamed = true
		fmt.Fprint(p.out, n.Delta)
	case agent.NotifyAgentMessage:
		if !p.streamed {
			fmt.Fprint(p.out, n.Text)
		}
		fmt.Fprintln(p.out)
		p.streamed = false
	case agent.NotifyAgentReasoning:
		if p.verbose {
			fmt.Fprintf(p.out, "[reasoning] %s\n", n.Text)
		}
	case agent.NotifyToolCallBegin:
		fmt.Fprintf(p.out, "[tool] %s %s\n", n.Tool, n.Arguments)
	case agent.NotifyToolCallEnd:
		status := "ok"
		if !n.Success {
			status = "failed"
		}
		fmt.Fprintf(p.out, "[tool] %s %s: %s\n", n.Tool, status, clip(n.Output))
	case agent.NotifyWebSearchEnd:
		fmt.Fprintf(p.out, "[web_search] %s\n", n.Query)
	case agent.NotifyPlanUpdate:
		if n.Plan != nil {
			for _, step := range n.Plan.Steps {
				fmt.Fprintf(p.out, "[plan] %-11s %s\n", step.Status, step.Step)
			}
		}
	case agent.NotifyRetrying:
		fmt.Fprintf(p.out, "[retry] attempt %d/%d in %s: %v\n", n.Attempt, n.MaxRetries, n.Delay, n.Err)
	case agent.NotifyError:
		fmt.Fprintf(p.out, "[error] %s\n", errorText(n))
	case agent.NotifyTokenCount:
		if p.verbose && n.Usage != nil {
			fmt.Fprintf(p.out, "[tokens] input=%d output=%d total=%d\n", n.Usage.InputTokens, n.Usage.OutputTokens, n.Usage.TotalTokens)
		}
	}
}

func (p *printer) writeJSON(n agent.Notification) {
	out := jsonNotification{
		Kind:         n.Kind,
		SubmissionID: n.SubmissionID,
		Delta:        n.Delta,
		Text:         n.Text,
		CallID:       n.CallID,
		Tool:         n.Tool,
		Arguments:    n.Arguments,
		Query:        n.Query,
		Output:       n.Output,
		Plan:         n.Plan,
		ResponseID:   n.ResponseID,
		Attempt:      n.Attempt,
		MaxRetries:   n.MaxRetries,
		DelayMs:      n.Delay.Milliseconds(),
	}
	if n.Kind == agent.NotifyToolCallEnd || n.Kind == agent.NotifyWebSearchEnd {
		success := n.Success
		out.Success = &success
	}
	if n.Usage != nil {
		out.Usage = n.Usage
	}
	if n.Err != nil {
		out.Error = n.Err.Error()
	}

	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	fmt.Fprintln(p.out, string(data))
}

func errorText(n agent.Notification) string {
	if n.Err != nil {
		return n.Err.Error()
	}
	return n.Text
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxPrintedOutput {
		return s
	}
	return s[:maxPrintedOutput] + "..."
}
