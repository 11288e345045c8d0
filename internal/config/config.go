package config

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/harun/turnstream/internal/logger"
	"github.com/harun/turnstream/pkg/agent"
	"github.com/harun/turnstream/pkg/backoff"
	"github.com/harun/turnstream/pkg/modelclient"
	"github.com/harun/turnstream/pkg/stream"
	"github.com/harun/turnstream/pkg/toolexecutor"
)

const redacted = "[REDACTED]"

// Config represents the turnstream configuration
type Config struct {
	Provider     ProviderConfig     `mapstructure:"provider" json:"provider"`
	Retry        RetryConfig        `mapstructure:"retry" json:"retry"`
	Stream       StreamConfig       `mapstructure:"stream" json:"stream"`
	Tools        ToolsConfig        `mapstructure:"tools" json:"tools"`
	Conversation ConversationConfig `mapstructure:"conversation" json:"conversation"`
	Logging      logger.Config      `mapstructure:"logging" json:"logging"`
}

// ProviderConfig describes the Responses endpoint and the model settings
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`

	// APIKey takes precedence over the variable named by APIKeyEnv
	APIKey    string `mapstructure:"api_key" json:"api_key,omitempty"`
	APIKeyEnv string `mapstructure:"api_key_env" json:"api_key_env"`

	ReasoningEffort  string        `mapstructure:"reasoning_effort" json:"reasoning_effort"`
	ReasoningSummary string        `mapstructure:"reasoning_summary" json:"reasoning_summary"`
	Verbosity        string        `mapstructure:"verbosity" json:"verbosity,omitempty"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" json:"request_timeout"`
}

// RetryConfig applies to both request retries and whole-turn retries
type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries" json:"max_retries"`
	BaseDelay     time.Duration `mapstructure:"base_delay" json:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay" json:"max_delay"`
	Multiplier    float64       `mapstructure:"multiplier" json:"multiplier"`
	JitterPercent float64       `mapstructure:"jitter_percent" json:"jitter_percent"`
}

// StreamConfig sizes the event buffer between the transport and the consumer
type StreamConfig struct {
	BufferSize   int           `mapstructure:"buffer_size" json:"buffer_size"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	Backpressure bool          `mapstructure:"backpressure" json:"backpressure"`
}

// ToolsConfig controls which tools are offered to the model
type ToolsConfig struct {
	Disabled      []string      `mapstructure:"disabled" json:"disabled"`
	EnableAll     bool          `mapstructure:"enable_all" json:"enable_all"`
	WebSearch     bool          `mapstructure:"web_search" json:"web_search"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxOutputSize int           `mapstructure:"max_output_size" json:"max_output_size"`
	Bridge        BridgeConfig  `mapstructure:"bridge" json:"bridge"`
}

// BridgeConfig describes an external MCP tool server spoken to over stdio
type BridgeConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled"`
	Command string   `mapstructure:"command" json:"command"`
	Args    []string `mapstructure:"args" json:"args"`
}

// ConversationConfig holds per-conversation prompt settings
type ConversationConfig struct {
	MaxTurns         int    `mapstructure:"max_turns" json:"max_turns"`
	BaseInstructions string `mapstructure:"base_instructions" json:"base_instructions,omitempty"`
	UserInstructions string `mapstructure:"user_instructions" json:"user_instructions,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	client := modelclient.DefaultConfig()
	policy := backoff.DefaultPolicy()
	opts := stream.DefaultOptions()

	return &Config{
		Provider: ProviderConfig{
			BaseURL:          client.BaseURL,
			Model:            client.Model,
			APIKeyEnv:        "OPENAI_API_KEY",
			ReasoningEffort:  client.ReasoningEffort,
			ReasoningSummary: client.ReasoningSummary,
			RequestTimeout:   client.RequestTimeout,
		},
		Retry: RetryConfig{
			MaxRetries:    client.MaxRetries,
			BaseDelay:     policy.BaseDelay,
			MaxDelay:      policy.MaxDelay,
			Multiplier:    policy.Multiplier,
			JitterPercent: policy.JitterPercent,
		},
		Stream: StreamConfig{
			BufferSize:   opts.BufferSize,
			IdleTimeout:  opts.IdleTimeout,
			Backpressure: opts.Backpressure,
		},
		Tools: ToolsConfig{
			Disabled:      []string{},
			Timeout:       30 * time.Second,
			MaxOutputSize: toolexecutor.DefaultMaxOutputSize,
			Bridge: BridgeConfig{
				Args: []string{},
			},
		},
		Conversation: ConversationConfig{
			MaxTurns: agent.DefaultMaxTurns,
		},
		Logging: logger.Config{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// ResolveAPIKey returns the configured key, falling back to the environment
func (c *Config) ResolveAPIKey() string {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey
	}
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}

// Policy returns the backoff policy shared by the client and the executor
func (c *Config) Policy() backoff.Policy {
	return backoff.Policy{
		BaseDelay:     c.Retry.BaseDelay,
		Multiplier:    c.Retry.Multiplier,
		MaxDelay:      c.Retry.MaxDelay,
		JitterPercent: c.Retry.JitterPercent,
	}
}

// ToClientConfig builds the model client configuration. The credential is
// required.
func (c *Config) ToClientConfig() modelclient.Config {
	cfg := modelclient.DefaultConfig()
	cfg.BaseURL = c.Provider.BaseURL
	cfg.APIKey = c.ResolveAPIKey()
	cfg.RequireCredential = true
	cfg.Model = c.Provider.Model
	cfg.ReasoningEffort = c.Provider.ReasoningEffort
	cfg.ReasoningSummary = c.Provider.ReasoningSummary
	cfg.Verbosity = c.Provider.Verbosity
	cfg.MaxRetries = c.Retry.MaxRetries
	cfg.Backoff = c.Policy()
	cfg.Stream = stream.Options{
		BufferSize:   c.Stream.BufferSize,
		IdleTimeout:  c.Stream.IdleTimeout,
		Backpressure: c.Stream.Backpressure,
	}
	if c.Provider.RequestTimeout > 0 {
		cfg.RequestTimeout = c.Provider.RequestTimeout
	}
	return cfg
}

// ToExecutorConfig builds the executor configuration. Client, Tools and
// Bridge are left for the caller.
func (c *Config) ToExecutorConfig() agent.Config {
	maxRetries := c.Retry.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}

	return agent.Config{
		DisabledTools:    append([]string(nil), c.Tools.Disabled...),
		EnableAllTools:   c.Tools.EnableAll,
		WebSearch:        c.Tools.WebSearch,
		BridgeEnabled:    c.Tools.Bridge.Enabled,
		Plan:             agent.NewPlanTracker(),
		MaxRetries:       maxRetries,
		Backoff:          c.Policy(),
		MaxTurns:         c.Conversation.MaxTurns,
		Model:            c.Provider.Model,
		BaseInstructions: c.Conversation.BaseInstructions,
		UserInstructions: c.Conversation.UserInstructions,
	}
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Provider.APIKey != "" {
		out.Provider.APIKey = redacted
	}
	out.Tools.Disabled = append([]string(nil), c.Tools.Disabled...)
	out.Tools.Bridge.Args = append([]string(nil), c.Tools.Bridge.Args...)
	return &out
}

// String returns a JSON representation of the config with secrets redacted
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// Validate checks the whole configuration and reports every problem found
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
