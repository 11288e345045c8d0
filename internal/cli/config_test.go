package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCommand(t *testing.T) {
	t.Run("should print the effective config with secrets redacted", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "turnstream.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"provider": {"model": "gpt-5-mini", "api_key": "sk-very-secret"}}`), 0644))

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"config", "--config", configPath})
		output := &bytes.Buffer{}
		cmd.SetOut(output)

		require.NoError(t, cmd.Execute())

		assert.Contains(t, output.String(), `"model": "gpt-5-mini"`)
		assert.Contains(t, output.String(), "[REDACTED]")
		assert.NotContains(t, output.String(), "sk-very-secret")
	})

	t.Run("should reject an invalid config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "turnstream.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"stream": {"buffer_size": 0}}`), 0644))

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"config", "--config", configPath})
		cmd.SetOut(&bytes.Buffer{})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stream.buffer_size")
	})
}

func TestConfigInitCommand(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "conf", "turnstream.json")

	cmd := GetRootCmd()
	cmd.SetArgs([]string{"config", "init", "--config", configPath})
	output := &bytes.Buffer{}
	cmd.SetOut(output)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, output.String(), configPath)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var written map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Contains(t, written, "provider")
	assert.Contains(t, written, "retry")

	t.Run("should refuse to overwrite without force", func(t *testing.T) {
		cmd.SetArgs([]string{"config", "init", "--config", configPath})
		assert.Error(t, cmd.Execute())
	})
}
