package agent

import (
	"context"
	"fmt"

	"github.com/harun/turnstream/pkg/protocol"
)

// RunConversation runs turns until one produces no tool outputs. Each turn's
// output items and tool outputs are appended to the history sent next.
// On error the result holds the history up to the last completed turn.
func (e *Executor) RunConversation(ctx context.Context, items []protocol.ResponseItem, sink Sink) (*ConversationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	history := make([]protocol.ResponseItem, len(items))
	copy(history, items)

	result := &ConversationResult{Usage: &protocol.TokenUsage{}}

	for turnIndex := 0; turnIndex < e.maxTurns; turnIndex++ {
		if err := ctx.Err(); err != nil {
			result.Items = history
			return result, err
		}

		turnResult, err := e.RunTurn(ctx, TurnInput{Items: history}, sink)
		if err != nil {
			result.Items = history
			return result, err
		}

		result.Turns++
		result.Usage.Add(turnResult.Usage)
		history = append(history, turnResult.Output...)
		history = append(history, turnResult.Items...)
		if msg := turnResult.LastAgentMessage(); msg != "" {
			result.LastAgentMessage = msg
		}

		if len(turnResult.Items) == 0 {
			result.Items = history
			return result, nil
		}
	}

	result.Items = history
	return result, fmt.Errorf("%w (%d)", ErrMaxTurns, e.maxTurns)
}
