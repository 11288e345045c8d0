package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TURNSTREAM_PROVIDER_MODEL
const EnvPrefix = "TURNSTREAM"

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader. An empty path uses the default
// location under the home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
	}
}

// WithEnvFile sets the dotenv file read before the environment is consulted.
// An empty name disables it.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load reads the .env file, then the config file, then TURNSTREAM_* variables.
// Later sources win. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		// Variables already set in the process are not overridden.
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to the config path, creating the directory if needed
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	setDefaults(v, cfg)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".turnstream", "turnstream.json")
}

// setDefaults registers every key so environment variables can override keys
// the config file does not mention
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("provider.base_url", cfg.Provider.BaseURL)
	v.SetDefault("provider.model", cfg.Provider.Model)
	v.SetDefault("provider.api_key", cfg.Provider.APIKey)
	v.SetDefault("provider.api_key_env", cfg.Provider.APIKeyEnv)
	v.SetDefault("provider.reasoning_effort", cfg.Provider.ReasoningEffort)
	v.SetDefault("provider.reasoning_summary", cfg.Provider.ReasoningSummary)
	v.SetDefault("provider.verbosity", cfg.Provider.Verbosity)
	v.SetDefault("provider.request_timeout", cfg.Provider.RequestTimeout.String())

	v.SetDefault("retry.max_retries", cfg.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay.String())
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay.String())
	v.SetDefault("retry.multiplier", cfg.Retry.Multiplier)
	v.SetDefault("retry.jitter_percent", cfg.Retry.JitterPercent)

	v.SetDefault("stream.buffer_size", cfg.Stream.BufferSize)
	v.SetDefault("stream.idle_timeout", cfg.Stream.IdleTimeout.String())
	v.SetDefault("stream.backpressure", cfg.Stream.Backpressure)

	v.SetDefault("tools.disabled", cfg.Tools.Disabled)
	v.SetDefault("tools.enable_all", cfg.Tools.EnableAll)
	v.SetDefault("tools.web_search", cfg.Tools.WebSearch)
	v.SetDefault("tools.timeout", cfg.Tools.Timeout.String())
	v.SetDefault("tools.max_output_size", cfg.Tools.MaxOutputSize)
	v.SetDefault("tools.bridge.enabled", cfg.Tools.Bridge.Enabled)
	v.SetDefault("tools.bridge.command", cfg.Tools.Bridge.Command)
	v.SetDefault("tools.bridge.args", cfg.Tools.Bridge.Args)

	v.SetDefault("conversation.max_turns", cfg.Conversation.MaxTurns)
	v.SetDefault("conversation.base_instructions", cfg.Conversation.BaseInstructions)
	v.SetDefault("conversation.user_instructions", cfg.Conversation.UserInstructions)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.redact_patterns", cfg.Logging.RedactPatterns)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
