package channel

import (
	"errors"
	"fmt"
)

// SendError classifies a delivery failure. Transient errors are retried
// per the backoff policy and feed the circuit breaker; permanent errors
// fail the job immediately and leave the breaker alone.
type SendError struct {
	Code      string
	Message   string
	Permanent bool
}

func (e *SendError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s send error [%s]: %s", kind, e.Code, e.Message)
}

// NewTransientError builds a retriable send error.
func NewTransientError(code, message string) *SendError {
	return &SendError{Code: code, Message: message}
}

// NewPermanentError builds a non-retriable send error.
func NewPermanentError(code, message string) *SendError {
	return &SendError{Code: code, Message: message, Permanent: true}
}

// IsPermanent reports whether err is a permanent delivery error.
// Unknown errors count as transient: when in doubt, retry.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Permanent
	}
	return false
}

// ErrorCode extracts the provider error code, if any.
func ErrorCode(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// classifyHTTPStatus maps a provider HTTP status to a send error.
// 4xx responses (except throttling and timeouts) mean the request
// itself is bad and will not improve on retry.
func classifyHTTPStatus(provider string, status int, message string) *SendError {
	code := fmt.Sprintf("%s_http_%d", provider, status)
	switch {
	case status == 408 || status == 429:
		return NewTransientError(code, message)
	case status >= 400 && status < 500:
		return NewPermanentError(code, message)
	default:
		return NewTransientError(code, message)
	}
}
