package alation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorClass classifies an API failure so callers can decide how to react.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may succeed if the user retries.
	// Examples: network errors, 5xx responses, rate limiting.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassAuth indicates a missing, expired or rejected token.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound indicates the requested object does not exist.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassPermanent indicates a non-recoverable error such as a malformed
	// request or an undecodable response.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ErrNoAccessToken is returned by data calls made before a token refresh succeeded.
var ErrNoAccessToken = &APIError{
	Class:   ErrorClassAuth,
	Message: "no valid API access token",
	Code:    ErrCodeNoToken,
}

// APIError is a classified failure of a catalog REST call.
type APIError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Operation is the client operation that failed (e.g. "get_folders").
	Operation string `json:"operation,omitempty"`

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// Detail is the vendor's explanation extracted from the response body.
	Detail string `json:"detail,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Class, e.Message)
	if e.Operation != "" {
		fmt.Fprintf(&sb, " (operation=%s", e.Operation)
		if e.StatusCode != 0 {
			fmt.Fprintf(&sb, ", status=%d", e.StatusCode)
		}
		sb.WriteString(")")
	} else if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status=%d)", e.StatusCode)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// newTransportError wraps a network-level failure.
func newTransportError(operation string, err error) *APIError {
	return &APIError{
		Class:     ErrorClassTransient,
		Message:   "network error",
		Code:      ErrCodeNetwork,
		Operation: operation,
		Err:       err,
	}
}

// newDecodeError wraps a response body that could not be decoded.
func newDecodeError(operation string, err error) *APIError {
	return &APIError{
		Class:     ErrorClassPermanent,
		Message:   "failed to decode response",
		Code:      ErrCodeDecode,
		Operation: operation,
		Err:       err,
	}
}

// newStatusError classifies an unexpected HTTP status and extracts the
// vendor's detail message from the body.
func newStatusError(operation string, status int, body []byte) *APIError {
	e := &APIError{
		Operation:  operation,
		StatusCode: status,
		Message:    fmt.Sprintf("unexpected status %d", status),
		Detail:     errorDetail(body),
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Class = ErrorClassAuth
		e.Code = ErrCodeUnauthorized
	case status == http.StatusNotFound:
		e.Class = ErrorClassNotFound
		e.Code = ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		e.Class = ErrorClassTransient
		e.Code = ErrCodeRateLimited
	case status >= 500:
		e.Class = ErrorClassTransient
		e.Code = ErrCodeServer
	default:
		e.Class = ErrorClassPermanent
		e.Code = ErrCodeBadRequest
	}
	return e
}

// errorDetail pulls a human-readable message out of an error body. The
// catalog answers with either {"detail": ...}, {"error": ...} or
// {"errors": [...]}; anything else is returned trimmed.
func errorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"detail", "error", "message", "errors.0", "non_field_errors.0"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.String() != "" {
				return r.String()
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// IsAuth returns true if the error is an authentication failure.
func IsAuth(err error) bool {
	return classOf(err) == ErrorClassAuth
}

// IsNotFound returns true if the error reports a missing object.
func IsNotFound(err error) bool {
	return classOf(err) == ErrorClassNotFound
}

// IsTransient returns true if the error may succeed on a later attempt.
func IsTransient(err error) bool {
	return classOf(err) == ErrorClassTransient
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	return classOf(err) == ErrorClassPermanent
}

func classOf(err error) ErrorClass {
	var e *APIError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodeNoToken      = "NO_TOKEN"
	ErrCodeNetwork      = "NETWORK"
	ErrCodeDecode       = "DECODE"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeServer       = "SERVER_ERROR"
	ErrCodeBadRequest   = "BAD_REQUEST"
)
