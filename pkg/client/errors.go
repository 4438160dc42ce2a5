package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/biofetch/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is wrapped by errors that survived at least one retry.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends while the client
	// is waiting or dispatching.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidRequest is returned for requests that cannot be dispatched
	// (unresolvable URL, unsupported method, unencodable body).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimitExceeded is returned in strict mode instead of waiting for
	// the request throttle or the download window.
	ErrRateLimitExceeded = ratelimit.ErrLimitExceeded
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus maps a non-2xx status to its error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// HTTPError is a non-2xx response that survived the retry budget.
type HTTPError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
	Body       []byte
	Class      ErrorClass
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %s error (status %d)", e.Method, e.URL, e.Class, e.StatusCode)
	if snippet := bodySnippet(e.Body, 200); snippet != "" {
		msg += ": " + snippet
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// DecodeError reports a body that could not be parsed in the requested format.
type DecodeError struct {
	Format Format
	URL    string
	Raw    []byte
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response from %s: %v", e.Format, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func bodySnippet(body []byte, limit int) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
