package reliability

import (
	"net/http"
	"time"
)

// Failure classifies why a single model attempt did not produce a completion.
type Failure string

const (
	FailureNone        Failure = ""
	FailureTransport   Failure = "transport"
	FailureEmptyBody   Failure = "empty_body"
	FailureRateLimited Failure = "rate_limited"
	FailureHTTPStatus  Failure = "http_status"
	FailureMalformed   Failure = "malformed"
)

// BackoffPolicy holds the fixed waits applied before a retry.
type BackoffPolicy struct {
	Default   time.Duration
	RateLimit time.Duration
}

// DefaultBackoffPolicy matches the observed upstream behavior: 3s generic, 5s after a 429.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Default:   3 * time.Second,
		RateLimit: 5 * time.Second,
	}
}

// Classify maps one attempt's outcome to a Failure. Transport errors are
// classified by the caller before a response exists.
func Classify(statusCode int, bodyLen int) Failure {
	if bodyLen == 0 {
		return FailureEmptyBody
	}
	if statusCode == http.StatusTooManyRequests {
		return FailureRateLimited
	}
	if statusCode != http.StatusOK {
		return FailureHTTPStatus
	}
	return FailureNone
}

// Backoff returns the fixed wait before retrying after f.
func (p BackoffPolicy) Backoff(f Failure) time.Duration {
	if f == FailureRateLimited {
		return p.RateLimit
	}
	return p.Default
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
