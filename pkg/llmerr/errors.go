// Package llmerr classifies model API failures into a closed set of kinds.
//
// Classification happens once, where the failure is first observed (HTTP status,
// transport error, server-pushed failure event). Callers decide on retries with
// KindOf and IsRetryable instead of inspecting error strings.
package llmerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed error-kind enumeration
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindClient
	KindRateLimited
	KindServer
	KindNetwork
	KindProtocol
	KindExplicitFailure
	KindUsageLimit
	KindCancelled
	KindStreamClosed
	KindIdleTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindValidation:      "validation",
	KindAuthentication:  "authentication",
	KindClient:          "client",
	KindRateLimited:     "rate_limited",
	KindServer:          "server",
	KindNetwork:         "network",
	KindProtocol:        "protocol",
	KindExplicitFailure: "explicit_failure",
	KindUsageLimit:      "usage_limit",
	KindCancelled:       "cancelled",
	KindStreamClosed:    "stream_closed",
	KindIdleTimeout:     "idle_timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified model API failure
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Code       string
	// RetryAfter is a server-supplied pacing hint, zero when absent
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.StatusCode > 0 {
		sb.WriteString(fmt.Sprintf(" (status %d)", e.StatusCode))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the transport layer may retry this failure
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServer, KindNetwork, KindStreamClosed, KindIdleTimeout:
		return true
	}
	return false
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err. Context cancellation maps to KindCancelled
// even when it was not wrapped in an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether a transport-level retry is allowed
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return KindOf(err) == KindNetwork
}

// RetryAfterOf extracts the server pacing hint from err
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// FromStatus classifies a non-success HTTP response
func FromStatus(status int, message string, header http.Header) *Error {
	e := &Error{StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status >= 500:
		e.Kind = KindServer
	case status >= 400:
		e.Kind = KindClient
	default:
		e.Kind = KindProtocol
	}
	if d, ok := RetryAfterFromHeader(header); ok {
		e.RetryAfter = d
	}
	return e
}

// FromTransport classifies an error returned by the HTTP client
func FromTransport(ctx context.Context, err error) *Error {
	if ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
		return Wrap(KindCancelled, err, "request cancelled")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindCancelled, err, "request cancelled")
	}
	return Wrap(KindNetwork, err, "transport error")
}

// RetryAfterFromHeader reads retry-after-ms or Retry-After (seconds)
func RetryAfterFromHeader(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	if v := strings.TrimSpace(header.Get("retry-after-ms")); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}
