// Package modelclient sends prompts to a Responses endpoint and exposes the
// server-sent reply as a stream.Stream.
//
// Stream returns as soon as the response headers arrive; a producer goroutine
// keeps reading the body, classifying frames and pushing events. Failures before
// that point are retried here with backoff; failures after it surface through
// the stream and are retried by the caller.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/internal/tracing"
	"github.com/harun/turnstream/pkg/backoff"
	"github.com/harun/turnstream/pkg/eventparser"
	"github.com/harun/turnstream/pkg/llmerr"
	"github.com/harun/turnstream/pkg/protocol"
	"github.com/harun/turnstream/pkg/stream"
)

const (
	tracerName       = "turnstream/modelclient"
	maxErrorBodySize = 64 * 1024
)

// Client streams model responses
type Client struct {
	cfg            Config
	family         protocol.ModelFamily
	conversationID string
	httpClient     *http.Client
	parser         *eventparser.Parser
	logger         zerolog.Logger
	sleep          SleepFunc
}

// New validates cfg and builds a client
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, llmerr.New(llmerr.KindValidation, "model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Originator == "" {
		cfg.Originator = DefaultOriginator
	}
	if cfg.RateLimitHeaderPrefix == "" {
		cfg.RateLimitHeaderPrefix = DefaultRateLimitHeaderPrefix
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff = backoff.DefaultPolicy()
	}
	if cfg.Stream == (stream.Options{}) {
		cfg.Stream = stream.DefaultOptions()
	}

	c := &Client{
		cfg:            cfg,
		family:         protocol.FindFamily(cfg.Model),
		conversationID: cfg.ConversationID,
		logger:         log.Logger,
		sleep:          backoff.Sleep,
	}
	if c.conversationID == "" {
		c.conversationID = tracing.NewConversationID()
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		// Only the header wait is bounded; a stream body may stay open for minutes.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.RequestTimeout
		c.httpClient = &http.Client{Transport: transport}
	}
	c.logger = c.logger.With().Str("component", "modelclient").Logger()
	c.parser = eventparser.New(c.logger)

	return c, nil
}

// ConversationID returns the id used for the session headers and prompt cache key
func (c *Client) ConversationID() string {
	return c.conversationID
}

// Family returns the resolved model family
func (c *Client) Family() protocol.ModelFamily {
	return c.family
}

// Model returns the configured model slug
func (c *Client) Model() string {
	return c.cfg.Model
}

// Stream sends prompt and returns the live event stream. Retryable failures
// before the response headers are retried up to MaxRetries times.
func (c *Client) Stream(ctx context.Context, prompt *protocol.Prompt) (*stream.Stream, error) {
	if prompt == nil || protocol.IsEmptyInput(prompt.Input) {
		return nil, llmerr.New(llmerr.KindValidation, "prompt input is empty")
	}
	if c.cfg.RequireCredential && strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, llmerr.New(llmerr.KindAuthentication, "an API key is required but none was configured")
	}

	body, err := json.Marshal(c.buildPayload(prompt))
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindValidation, err, "failed to encode request")
	}

	logger := tracing.LoggerFromContext(ctx, c.logger)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.send(ctx, body, attempt)
		if err == nil {
			return c.startStream(ctx, resp, logger), nil
		}
		lastErr = err

		if !llmerr.IsRetryable(err) || attempt == c.cfg.MaxRetries {
			break
		}

		hint, _ := llmerr.RetryAfterOf(err)
		delay := c.cfg.Backoff.DelayWithHint(attempt, hint)
		observability.RecordRetry("transport", llmerr.KindOf(err).String())
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.cfg.MaxRetries).
			Dur("delay", delay).
			Msg("Request failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, llmerr.Wrap(llmerr.KindCancelled, err, "cancelled while waiting to retry")
		}
	}

	return nil, lastErr
}

func (c *Client) send(ctx context.Context, body []byte, attempt int) (*http.Response, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "responses.request",
		attribute.String("model", c.cfg.Model),
		attribute.Int("attempt", attempt),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		e := llmerr.Wrap(llmerr.KindValidation, err, "failed to create request")
		tracing.EndSpan(span, e)
		return nil, e
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordRequestAttempt(0, time.Since(start))
		e := llmerr.FromTransport(ctx, err)
		tracing.EndSpan(span, e)
		return nil, e
	}
	observability.RecordRequestAttempt(resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		tracing.EndSpan(span, nil)
		return resp, nil
	}

	e := statusError(resp)
	tracing.EndSpan(span, e)
	return nil, e
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("OpenAI-Beta", "responses=experimental")
	req.Header.Set("conversation_id", c.conversationID)
	req.Header.Set("session_id", c.conversationID)
	req.Header.Set("originator", c.cfg.Originator)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// statusError classifies a non-2xx response and closes its body
func statusError(resp *http.Response) *llmerr.Error {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	message := strings.TrimSpace(string(raw))
	code := ""
	var parsed apiErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		code = parsed.Error.Code
		if code == "" {
			code = parsed.Error.Type
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	e := llmerr.FromStatus(resp.StatusCode, message, resp.Header)
	e.Code = code
	if resp.StatusCode == http.StatusTooManyRequests && code == "usage_limit_reached" {
		e.Kind = llmerr.KindUsageLimit
	}
	if e.RetryAfter == 0 {
		if d, ok := eventparser.ParseRetryAfter(message); ok {
			e.RetryAfter = d
		}
	}
	return e
}
