package torn

import (
	"fmt"
	"strings"
)

// ErrorClass classifies a failed fetch attempt for retry decisions and
// observability.
type ErrorClass string

const (
	// ClassNetwork represents transport failures and timeouts. Always retryable.
	ClassNetwork ErrorClass = "network"

	// ClassServer represents HTTP 5xx responses. Retryable.
	ClassServer ErrorClass = "server"

	// ClassRateLimit represents HTTP 429 or an application error coded or
	// worded as rate limiting. Retryable, and triggers a global limiter penalty.
	ClassRateLimit ErrorClass = "rate_limit"

	// ClassUnauthorized represents HTTP 401/403 or a bad-key application
	// error. Terminal.
	ClassUnauthorized ErrorClass = "unauthorized"

	// ClassNotFound represents HTTP 404 or an unknown-id application error.
	// Terminal.
	ClassNotFound ErrorClass = "not_found"

	// ClassClient represents any other 4xx response. Terminal.
	ClassClient ErrorClass = "client"

	// ClassApplication represents a Torn error object embedded in a 200
	// response that is not known to be transient. Terminal.
	ClassApplication ErrorClass = "application"

	// ClassCancelled represents a cooperative stop observed mid-fetch.
	ClassCancelled ErrorClass = "cancelled"
)

// User-facing failure phrases surfaced through TargetRecord.Error.
const (
	msgCancelled    = "Cancelled"
	msgUnauthorized = "Unauthorized / incorrect API key"
	msgNotFound     = "User not found"
	msgGaveUp       = "Too many requests / temporary failure (retried and gave up)"
)

// Torn embeds logical errors inside HTTP 200 responses as
// {"error":{"code":N,"error":"..."}}. The code table is authoritative;
// keyword matching on the message is only a best-effort supplement for
// wording the table does not cover.
var tornErrorMessages = map[int]string{
	0:  "Unknown error",
	1:  "API key is empty",
	2:  "API key is invalid or incorrect",
	3:  "Wrong API call type",
	4:  "Wrong API fields requested",
	5:  "Too many requests",
	6:  "Incorrect user ID",
	7:  "Target not eligible for this key",
	8:  "IP address blocked for abuse",
	9:  "Torn API is temporarily disabled",
	10: "Key owner is in federal jail",
	11: "API key change error",
	12: "API key read error",
	13: "API key disabled due to owner inactivity",
	14: "Daily read limit reached",
	15: "Temporary API error",
	16: "Access level of this key is not high enough",
	17: "Backend error occurred, please try again",
	18: "API key is paused",
}

// APIError is a Torn application-level error extracted from a 200 response.
type APIError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("torn error %d: %s", e.Code, e.Message)
}

// UserMessage returns the human-readable phrase for the error, preferring the
// known code table and falling back to the raw provider message.
func (e *APIError) UserMessage() string {
	if msg, ok := tornErrorMessages[e.Code]; ok {
		return msg
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Torn error %d", e.Code)
}

// Retryable reports whether the application error indicates a temporary
// condition worth retrying. Code 5 ("Too many requests") is the known
// transient code; message keywords cover provider wording drift.
func (e *APIError) Retryable() bool {
	if e.Code == 5 {
		return true
	}
	m := strings.ToLower(e.Message)
	return strings.Contains(m, "too many request") ||
		strings.Contains(m, "rate limit") ||
		strings.Contains(m, "try again later")
}

// classifyStatus maps an HTTP status code to an error class. Statuses below
// 400 never reach this function.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ClassRateLimit
	case status >= 500:
		return ClassServer
	case status == 401 || status == 403:
		return ClassUnauthorized
	case status == 404:
		return ClassNotFound
	default:
		return ClassClient
	}
}

// retryable reports whether an error class may be retried.
func retryable(class ErrorClass) bool {
	switch class {
	case ClassNetwork, ClassServer, ClassRateLimit:
		return true
	default:
		return false
	}
}
