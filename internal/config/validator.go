package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (must be one of: %s)", field, value, strings.Join(allowed, ", "))
}

// ValidateBaseURL requires an absolute http(s) URL
func (v *Validator) ValidateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("provider.base_url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid provider.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid provider.base_url %q: must be an absolute http(s) URL", raw)
	}
	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("provider.model cannot be empty")
	}
	return nil
}

// ValidateReasoningEffort accepts an empty value, which leaves it to the server
func (v *Validator) ValidateReasoningEffort(effort string) error {
	if effort == "" {
		return nil
	}
	return oneOf("reasoning effort", effort, "minimal", "low", "medium", "high")
}

// ValidateReasoningSummary accepts an empty value
func (v *Validator) ValidateReasoningSummary(summary string) error {
	if summary == "" {
		return nil
	}
	return oneOf("reasoning summary", summary, "auto", "concise", "detailed", "none")
}

// ValidateVerbosity accepts an empty value
func (v *Validator) ValidateVerbosity(verbosity string) error {
	if verbosity == "" {
		return nil
	}
	return oneOf("verbosity", verbosity, "low", "medium", "high")
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// ValidateConfig performs comprehensive validation and returns every error
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error
	add := func(err error) {
		if err != nil {
			errors = append(errors, err)
		}
	}

	add(v.ValidateBaseURL(cfg.Provider.BaseURL))
	add(v.ValidateModel(cfg.Provider.Model))
	add(v.ValidateReasoningEffort(cfg.Provider.ReasoningEffort))
	add(v.ValidateReasoningSummary(cfg.Provider.ReasoningSummary))
	add(v.ValidateVerbosity(cfg.Provider.Verbosity))
	if cfg.Provider.APIKey == "" && strings.TrimSpace(cfg.Provider.APIKeyEnv) == "" {
		add(fmt.Errorf("provider.api_key_env cannot be empty when no api_key is set"))
	}
	if cfg.Provider.RequestTimeout < 0 {
		add(fmt.Errorf("provider.request_timeout must be >= 0"))
	}

	if cfg.Retry.MaxRetries < 0 {
		add(fmt.Errorf("retry.max_retries must be >= 0"))
	}
	if cfg.Retry.BaseDelay <= 0 {
		add(fmt.Errorf("retry.base_delay must be > 0"))
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		add(fmt.Errorf("retry.max_delay must be >= retry.base_delay"))
	}
	if cfg.Retry.Multiplier < 1 {
		add(fmt.Errorf("retry.multiplier must be >= 1"))
	}
	if cfg.Retry.JitterPercent < 0 || cfg.Retry.JitterPercent > 1 {
		add(fmt.Errorf("retry.jitter_percent must be between 0 and 1"))
	}

	if cfg.Stream.BufferSize <= 0 {
		add(fmt.Errorf("stream.buffer_size must be > 0"))
	}
	if cfg.Stream.IdleTimeout <= 0 {
		add(fmt.Errorf("stream.idle_timeout must be > 0"))
	}

	if cfg.Tools.Timeout < 0 {
		add(fmt.Errorf("tools.timeout must be >= 0"))
	}
	if cfg.Tools.MaxOutputSize <= 0 {
		add(fmt.Errorf("tools.max_output_size must be > 0"))
	}
	for i, name := range cfg.Tools.Disabled {
		if strings.TrimSpace(name) == "" {
			add(fmt.Errorf("tools.disabled[%d]: name cannot be empty", i))
		}
	}
	if cfg.Tools.Bridge.Enabled && strings.TrimSpace(cfg.Tools.Bridge.Command) == "" {
		add(fmt.Errorf("tools.bridge.command is required when the bridge is enabled"))
	}

	if cfg.Conversation.MaxTurns < 0 {
		add(fmt.Errorf("conversation.max_turns must be >= 0"))
	}

	add(v.ValidateLogLevel(cfg.Logging.Level))
	for i, pattern := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			add(fmt.Errorf("logging.redact_patterns[%d]: %w", i, err))
		}
	}

	return errors
}
