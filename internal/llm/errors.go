package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies a backend failure
type Kind int

const (
	KindFatal       Kind = iota // Anything not listed below
	KindTimeout                 // Call exceeded its deadline
	KindConnection              // Connection refused/reset, truncated response
	KindRateLimited             // HTTP 429 or provider quota signal
	KindServer                  // HTTP 5xx
	KindValidation              // Output does not match the schema
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	default:
		return "fatal"
	}
}

// Retryable reports whether a failure of this kind should be retried with backoff
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnection, KindRateLimited, KindServer:
		return true
	}
	return false
}

// ErrToolsUnsupported is returned by backends asked to host tools they cannot run
var ErrToolsUnsupported = errors.New("backend does not support tool execution")

// Error is a classified backend failure
type Error struct {
	Kind       Kind
	Backend    string
	StatusCode int // HTTP status if known
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (%d): %v", e.Backend, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err; unclassified errors are classified on the fly.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}

// IsRetryable reports whether err is a transient backend failure
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}

// Classify maps transport-level errors onto a Kind. It recognises deadlines,
// network timeouts, resets and refusals, and falls back to message matching for
// SDKs that flatten their errors into strings.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline_exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"):
		return KindConnection
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "overloaded"):
		return KindRateLimited
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"):
		return KindServer
	}
	return KindFatal
}

// KindForStatus maps an HTTP status code onto a Kind
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == 529: // Anthropic "overloaded"
		return KindRateLimited
	case code >= 500:
		return KindServer
	}
	return KindFatal
}

// wrap classifies err and tags it with the backend name
func wrap(backend string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: Classify(err), Backend: backend, Err: err}
}

func statusError(backend string, code int, err error) error {
	return &Error{Kind: KindForStatus(code), Backend: backend, StatusCode: code, Err: err}
}
