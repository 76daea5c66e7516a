package publish

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ValidationError rejects a bad scheduling request synchronously. It is
// never attached to a platform post row and no job is enqueued for it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// CredentialError means the platform credential is missing, expired beyond
// refresh, or rejected. When ReauthRequired is set the user must reconnect
// the account; the worker treats it as terminal for that platform.
type CredentialError struct {
	Platform       string
	ReauthRequired bool
	Reason         string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error (%s): %s", e.Platform, e.Reason)
}

// RateLimitError is retryable. RetryAfter carries the platform-provided
// wait hint when present, zero otherwise.
type RateLimitError struct {
	Platform   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.Platform)
}

// TransientError covers network failures, timeouts and 5xx responses.
type TransientError struct {
	Platform string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error (%s): %v", e.Platform, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TerminalError is a permanent platform rejection; retrying cannot help.
type TerminalError struct {
	Platform string
	Reason   string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal error (%s): %s", e.Platform, e.Reason)
}

// IsRetryable reports whether a later attempt could succeed.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// RetryAfterHint extracts the platform-provided wait from a rate limit
// error, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// MapResponse converts a non-2xx platform response into the taxonomy:
// auth failures become CredentialError, 429 RateLimitError (honoring
// Retry-After), 5xx TransientError, anything else TerminalError.
func MapResponse(platform string, statusCode int, retryAfterHeader, body string) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &CredentialError{
			Platform:       platform,
			ReauthRequired: true,
			Reason:         fmt.Sprintf("status %d: %s", statusCode, body),
		}
	case statusCode == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(retryAfterHeader); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &RateLimitError{Platform: platform, RetryAfter: retryAfter}
	case statusCode >= 500:
		return &TransientError{
			Platform: platform,
			Err:      fmt.Errorf("status %d: %s", statusCode, body),
		}
	default:
		return &TerminalError{
			Platform: platform,
			Reason:   fmt.Sprintf("status %d: %s", statusCode, body),
		}
	}
}
