package modelclient

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/turnstream/pkg/backoff"
	"github.com/harun/turnstream/pkg/stream"
)

const (
	DefaultBaseURL               = "https://api.openai.com/v1"
	DefaultOriginator            = "turnstream"
	DefaultRateLimitHeaderPrefix = "x-codex"
	DefaultMaxRetries            = 3
)

// Config holds everything the client needs to build and send requests
type Config struct {
	BaseURL string
	APIKey  string
	// RequireCredential makes Stream fail with an authentication error when APIKey is empty
	RequireCredential bool

	Model            string
	ReasoningEffort  string // minimal, low, medium, high
	ReasoningSummary string // auto, concise, detailed, none
	Verbosity        string // low, medium, high; only sent to families that support it

	// ConversationID is sent as conversation/session header and prompt cache key.
	// Generated when empty.
	ConversationID string
	Originator     string

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	Backoff    backoff.Policy
	Stream     stream.Options

	RateLimitHeaderPrefix string

	// RequestTimeout bounds the wait for response headers, not the stream body
	RequestTimeout time.Duration
}

// DefaultConfig returns a config with the documented defaults and no credential
func DefaultConfig() Config {
	return Config{
		BaseURL:               DefaultBaseURL,
		Model:                 "gpt-5",
		ReasoningEffort:       "medium",
		ReasoningSummary:      "auto",
		Originator:            DefaultOriginator,
		MaxRetries:            DefaultMaxRetries,
		Backoff:               backoff.DefaultPolicy(),
		Stream:                stream.DefaultOptions(),
		RateLimitHeaderPrefix: DefaultRateLimitHeaderPrefix,
		RequestTimeout:        60 * time.Second,
	}
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSleep replaces the backoff sleep, mostly for tests
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}
