package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithRunID(ctx, "run-456")
	ctx = WithConversationID(ctx, "conv-789")
	ctx = WithSubmissionID(ctx, "sub-abc")

	var buf bytes.Buffer
	logger := PropagateToLogger(ctx, zerolog.New(&buf))
	logger.Info().Msg("test message")

	output := buf.String()

	if !contains(output, "trace-123") {
		t.Error("Trace ID not in log output")
	}
	if !contains(output, "run-456") {
		t.Error("Run ID not in log output")
	}
	if !contains(output, "conv-789") {
		t.Error("Conversation ID not in log output")
	}
	if !contains(output, "sub-abc") {
		t.Error("Submission ID not in log output")
	}
}

func TestLoggerFromContextWithoutIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if contains(buf.String(), "trace_id") {
		t.Error("Unexpected trace_id field")
	}
}

func TestStartSpanStoresTraceID(t *testing.T) {
	if err := InitOpenTelemetry("turnstream-test"); err != nil {
		t.Fatalf("init: %v", err)
	}

	ctx := WithConversationID(context.Background(), "conv-1")
	ctx, span := StartSpan(ctx, "tracing_test", "op")
	EndSpan(span, nil)

	if GetTraceID(ctx) == "" {
		t.Error("Trace ID should be taken from the span")
	}
}

func contains(s, substr string) bool {
	return bytes.Contains([]byte(s), []byte(substr))
}
