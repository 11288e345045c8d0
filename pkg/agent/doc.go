// Package agent runs conversation turns against a streaming model client.
//
// A turn moves Pending → Streaming → {Completed, Retrying → Streaming, Failed, Cancelled}.
// Before every attempt, function calls in the input that lack an output get a
// synthetic "aborted" output so the provider's pairing rule holds.
//
// Invariants:
// - One stream per attempt; attempts never overlap.
// - Tool failures become function_call_output text and never fail a turn.
// - Cancellation, authentication and usage-limit failures are never retried.
//
// Usage:
//
//	exec, _ := agent.NewExecutor(agent.Config{Client: client, Tools: tools, Model: "gpt-5"})
//	result, err := exec.RunConversation(ctx, []protocol.ResponseItem{protocol.UserMessage("hi")},
//		agent.SinkFunc(func(n agent.Notification) { fmt.Print(n.Delta) }))
package agent
