package dispatch

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPublishTimeout = 30 * time.Second

	// maxErrorBodyBytes bounds how much of a platform error response gets
	// copied into errorMessage.
	maxErrorBodyBytes = 512
)

// newHTTPClient builds the http.Client every adapter shares the shape of.
// The timeout is the hard bound on one protocol step; multi-step adapters
// apply it per step.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &http.Client{Timeout: timeout}
}

// classifyResponse maps a non-2xx platform response onto the normalized
// failure taxonomy.
func classifyResponse(platform string, resp *http.Response) *PublishError {
	body := readBodySnippet(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PublishError{
			Kind:     KindAuth,
			Platform: platform,
			Message:  "credential rejected: " + body,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &PublishError{
			Kind:       KindRateLimited,
			Platform:   platform,
			Message:    "rate limited: " + body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PublishError{
			Kind:     KindValidation,
			Platform: platform,
			Message:  "payload rejected (" + resp.Status + "): " + body,
		}
	case resp.StatusCode >= 500:
		return &PublishError{
			Kind:     KindTransient,
			Platform: platform,
			Message:  "server error (" + resp.Status + "): " + body,
		}
	default:
		return &PublishError{
			Kind:     KindUnknown,
			Platform: platform,
			Message:  "unexpected status " + resp.Status + ": " + body,
		}
	}
}

// transportError wraps a failed round trip. Network-level failures are
// always transient.
func transportError(platform string, err error) *PublishError {
	return &PublishError{
		Kind:     KindTransient,
		Platform: platform,
		Message:  "request failed: " + err.Error(),
	}
}

func readBodySnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// parseRetryAfter handles the delta-seconds form of the Retry-After header.
// HTTP-date form is rare from these platforms and parses to zero (no hint).
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
