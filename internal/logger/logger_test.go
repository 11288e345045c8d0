package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output goes to the configured writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Msg("hello")
		assert.Contains(t, buf.String(), `"message":"hello"`)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "turnstream.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Info().Msg("test message")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "test message")
	})

	t.Run("redaction masks credentials", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Redaction: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Str("authorization", "Bearer abc.def.ghi").Msg("request")
		assert.NotContains(t, buf.String(), "abc.def.ghi")
		assert.Contains(t, buf.String(), "[REDACTED]")
	})

	t.Run("extra redact patterns are masked", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Redaction: true, RedactPatterns: []string{`acct-[0-9]+`}, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Str("account", "acct-4242").Msg("lookup")
		assert.NotContains(t, buf.String(), "acct-4242")
	})

	t.Run("invalid redact pattern is rejected", func(t *testing.T) {
		_, err := New(Config{Level: "info", Redaction: true, RedactPatterns: []string{`[broken`}, Output: &bytes.Buffer{}})
		assert.Error(t, err)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "chatty", Console: true, Output: &buf})
		require.NoError(t, err)

		logger.Debug().Msg("hidden")
		logger.Info().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("installs the global logger", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := New(Config{Level: "debug", Console: true, Output: &buf})
		require.NoError(t, err)

		log.Debug().Msg("from global")
		assert.True(t, strings.Contains(buf.String(), "from global"))
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	zl := logger.Component("modelclient")
	zl.Info().Msg("attempt")

	assert.Contains(t, buf.String(), `"component":"modelclient"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Empty(t, cfg.File)
}
