// Package fault classifies pipeline failures into a small set of error
// codes and decides retry eligibility. The classification is deterministic
// and is the single source of truth for what the retry scheduler may act on.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code identifies a class of pipeline failure.
type Code string

// Error codes, in rough order of how specific they are.
const (
	CodeBadAudio      Code = "bad_audio"
	CodeTooLong       Code = "too_long"
	CodeQuotaExceeded Code = "quota_exceeded"
	CodeProviderDown  Code = "provider_down"
	CodeTimeout       Code = "timeout"
	CodeUnauthorized  Code = "unauthorized"
	CodeUnknown       Code = "unknown"
)

// Retryable reports whether failures with the given code are transient.
// Only provider_down and timeout are worth retrying without intervention.
func Retryable(code Code) bool {
	return code == CodeProviderDown || code == CodeTimeout
}

// Error is a failure that has already been classified, typically by a
// provider client that understands its own error codes.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error, preserving it for unwrapping.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// StatusError is a provider failure identified only by an HTTP-like status.
// Provider clients return it when the response carried no recognizable
// provider error code.
type StatusError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("provider returned status %d", e.Status)
}

// transport-level signals that indicate a transient network problem
var transportKeywords = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"dns",
	"network is unreachable",
	"unexpected eof",
}

// Classify maps any failure to a (code, retryable) pair. Rules, in priority
// order: an already-classified Error keeps its code; an HTTP-like status is
// mapped by range; transport-level signals map to timeout; everything else
// is unknown.
func Classify(err error) (Code, bool) {
	if err == nil {
		return CodeUnknown, false
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code, Retryable(classified.Code)
	}

	var status *StatusError
	if errors.As(err, &status) {
		code := classifyStatus(status.Status)
		return code, Retryable(code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout, true
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range transportKeywords {
		if strings.Contains(msg, keyword) {
			return CodeTimeout, true
		}
	}

	return CodeUnknown, false
}

func classifyStatus(status int) Code {
	switch {
	case status == 401 || status == 403:
		return CodeUnauthorized
	case status == 408:
		return CodeTimeout
	case status >= 500:
		return CodeProviderDown
	default:
		return CodeUnknown
	}
}
