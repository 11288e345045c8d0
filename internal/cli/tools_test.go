package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/turnstream/pkg/toolexecutor"
)

func TestDemoTools(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	te := toolexecutor.New()
	require.NoError(t, registerDemoTools(te, func() time.Time { return fixed }))

	assert.Equal(t, []string{"echo", "time"}, te.ListTools())

	t.Run("should echo", func(t *testing.T) {
		result := te.ExecuteJSON(context.Background(), "echo", `{"text":"hi"}`, nil)
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "hi", result.Text())
	})

	t.Run("should report UTC by default", func(t *testing.T) {
		result := te.ExecuteJSON(context.Background(), "time", `{}`, nil)
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "2025-03-01T12:00:00Z", result.Text())
	})

	t.Run("should reject an unknown timezone", func(t *testing.T) {
		result := te.ExecuteJSON(context.Background(), "time", `{"timezone":"Mars/Olympus"}`, nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "unknown timezone")
	})
}
