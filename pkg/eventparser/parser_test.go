package eventparser

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/turnstream/pkg/llmerr"
	"github.com/harun/turnstream/pkg/protocol"
)

func classify(t *testing.T, raw string) ([]protocol.Event, error) {
	t.Helper()
	p := New(zerolog.Nop())
	env := Decode([]byte(raw))
	require.NotNil(t, env, "frame should decode: %s", raw)
	return p.Classify(env)
}

func TestDecode(t *testing.T) {
	t.Run("should return nil for malformed input", func(t *testing.T) {
		assert.Nil(t, Decode(nil))
		assert.Nil(t, Decode([]byte("   ")))
		assert.Nil(t, Decode([]byte("not json")))
		assert.Nil(t, Decode([]byte(`{"type":`)))
	})

	t.Run("should decode envelope fields", func(t *testing.T) {
		env := Decode([]byte(`{"type":"response.output_text.delta","delta":"hi"}`))
		require.NotNil(t, env)
		assert.Equal(t, TypeOutputTextDelta, env.Type)
		assert.Equal(t, "hi", env.Delta)
	})
}

func TestClassify_Created(t *testing.T) {
	events, err := classify(t, `{"type":"response.created","response":{"id":"resp_1"}}`)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventCreated, events[0].Kind)
}

func TestClassify_Failed(t *testing.T) {
	t.Run("should carry the message and retry hint", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.failed","response":{"error":{"message":"Rate limit reached for gpt-5. Please try again in 1.5s."}}}`)
		assert.Empty(t, events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Rate limit reached")

		var llmErr *llmerr.Error
		require.True(t, errors.As(err, &llmErr))
		assert.Equal(t, llmerr.KindExplicitFailure, llmErr.Kind)
		assert.Equal(t, 1500*time.Millisecond, llmErr.RetryAfter)
	})

	t.Run("should classify usage limits", func(t *testing.T) {
		_, err := classify(t, `{"type":"response.failed","response":{"error":{"code":"usage_limit_reached","message":"You've hit your usage limit"}}}`)
		assert.Equal(t, llmerr.KindUsageLimit, llmerr.KindOf(err))
		assert.False(t, llmerr.IsRetryable(err))
	})

	t.Run("should fail even without a payload", func(t *testing.T) {
		_, err := classify(t, `{"type":"response.failed"}`)
		require.Error(t, err)
		assert.Equal(t, llmerr.KindExplicitFailure, llmerr.KindOf(err))
	})
}

func TestClassify_Completed(t *testing.T) {
	events, err := classify(t, `{"type":"response.completed","response":{"id":"resp_9","usage":{
		"input_tokens":100,"input_tokens_details":{"cached_tokens":40},
		"output_tokens":20,"output_tokens_details":{"reasoning_tokens":5},
		"total_tokens":120}}}`)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, protocol.EventCompleted, ev.Kind)
	assert.Equal(t, "resp_9", ev.ResponseID)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, protocol.TokenUsage{
		InputTokens:           100,
		CachedInputTokens:     40,
		OutputTokens:          20,
		ReasoningOutputTokens: 5,
		TotalTokens:           120,
	}, *ev.Usage)
}

func TestClassify_Deltas(t *testing.T) {
	tests := []struct {
		raw  string
		kind protocol.EventKind
	}{
		{raw: `{"type":"response.output_text.delta","delta":"a"}`, kind: protocol.EventOutputTextDelta},
		{raw: `{"type":"response.reasoning_summary_text.delta","delta":"b"}`, kind: protocol.EventReasoningSummaryDelta},
		{raw: `{"type":"response.reasoning_text.delta","delta":"c"}`, kind: protocol.EventReasoningContentDelta},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			events, err := classify(t, tt.raw)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.kind, events[0].Kind)
			assert.NotEmpty(t, events[0].Delta)
		})
	}

	t.Run("should drop empty deltas", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.output_text.delta","delta":""}`)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestClassify_Items(t *testing.T) {
	t.Run("should decode finished function calls", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_1","name":"echo","arguments":"{\"text\":\"hi\"}","call_id":"call_1"}}`)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].Item)
		assert.True(t, events[0].Item.IsFunctionCall())
		assert.Equal(t, "call_1", events[0].Item.CallID)
		assert.Equal(t, "echo", events[0].Item.Name)
	})

	t.Run("should skip finished frames without an item", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.output_item.done"}`)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("should announce web search calls", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.output_item.added","item":{"type":"web_search_call","id":"ws_1","status":"in_progress"}}`)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, protocol.EventWebSearchCallBegin, events[0].Kind)
		assert.Equal(t, "ws_1", events[0].CallID)
	})

	t.Run("should ignore other added items", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.output_item.added","item":{"type":"message","id":"msg_1"}}`)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("should map summary part boundaries", func(t *testing.T) {
		events, err := classify(t, `{"type":"response.reasoning_summary_part.added"}`)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, protocol.EventReasoningSummaryPartAdded, events[0].Kind)
	})
}

func TestClassify_Ignored(t *testing.T) {
	for wireType := range ignoredTypes {
		t.Run(wireType, func(t *testing.T) {
			events, err := classify(t, `{"type":"`+wireType+`","delta":"x"}`)
			assert.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	events, err := classify(t, `{"type":"response.brand_new_thing","payload":{}}`)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestClassify_Nil(t *testing.T) {
	events, err := New(zerolog.Nop()).Classify(nil)
	assert.NoError(t, err)
	assert.Nil(t, events)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		message string
		want    time.Duration
		ok      bool
	}{
		{message: "Please try again in 1.5s.", want: 1500 * time.Millisecond, ok: true},
		{message: "Please try again in 2s", want: 2 * time.Second, ok: true},
		{message: "retry in 250ms", want: 250 * time.Millisecond, ok: true},
		{message: "Try again IN 3S", want: 3 * time.Second, ok: true},
		{message: "Please try again later", ok: false},
		{message: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
