package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode         int
	Body               string
	RateLimitExhausted bool
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("github api returned %d: %s", e.StatusCode, body)
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

var retryableMessages = []string{
	"timeout",
	"timed out",
	"rate limit",
	"connection reset",
	"econnreset",
	"broken pipe",
	"temporarily unavailable",
	"eof",
}

// IsRetryable classifies transient failures: 5xx, 429, rate-limited 403,
// network timeouts and known transport error messages.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode >= 500:
			return true
		case se.StatusCode == http.StatusTooManyRequests, se.StatusCode == http.StatusRequestTimeout:
			return true
		case se.StatusCode == http.StatusForbidden:
			return se.RateLimitExhausted || strings.Contains(strings.ToLower(se.Body), "rate limit")
		default:
			return false
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
