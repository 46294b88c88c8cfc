// Package errs holds the typed failures of the chat pipeline and their mapping
// to HTTP status codes and safe client messages.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Public messages. These are the only error strings that reach a client.
const (
	MsgInvalidFormat     = "Invalid message format. Expected { messages: Array<{role,content}> }"
	MsgTooManyRequests   = "Too many requests, slow down."
	MsgUpstreamThrottled = "Rate limit exceeded, try again shortly."
	MsgMisconfigured     = "Server misconfiguration: missing API key, base URL, or model"
	MsgFailed            = "Failed to process request"
)

// ConfigError reports missing or invalid required configuration.
type ConfigError struct {
	Fields []string
}

func (e *ConfigError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Fields, ", ")
}

// ValidationError reports a malformed request body.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// RateLimitedError means the local per-client quota was exceeded.
type RateLimitedError struct {
	ClientKey string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("client %q exceeded the request quota", e.ClientKey)
}

// UpstreamError is a failed call to the model provider. StatusCode is the HTTP
// status the provider answered with, or 0 when no response was received.
type UpstreamError struct {
	Model      string
	Attempt    int
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("model %s attempt %d: status %d: %v", e.Model, e.Attempt, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Throttled reports whether the provider asked the caller to slow down.
func (e *UpstreamError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// TransportError is returned by the chat client. Kind is the user-facing
// sentinel, Cause the underlying failure kept for logs.
type TransportError struct {
	Kind  error
	Cause error
}

func (e *TransportError) Error() string {
	return e.Kind.Error()
}

func (e *TransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// HTTPStatus maps an error from the chat pipeline to a response status.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		limited    *RateLimitedError
		upstream   *UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &upstream) && upstream.Throttled():
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message for err. Internal details
// are never included.
func PublicMessage(err error) string {
	var (
		cfg        *ConfigError
		validation *ValidationError
		limited    *RateLimitedError
		upstream   *UpstreamError
	)
	switch {
	case errors.As(err, &cfg):
		return MsgMisconfigured
	case errors.As(err, &validation):
		return MsgInvalidFormat
	case errors.As(err, &limited):
		return MsgTooManyRequests
	case errors.As(err, &upstream) && upstream.Throttled():
		return MsgUpstreamThrottled
	default:
		return MsgFailed
	}
}
