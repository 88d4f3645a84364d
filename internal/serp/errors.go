package serp

import (
	"errors"
	"fmt"
)

// Sentinel errors for proxy API failure classes. Callers match with errors.Is.
var (
	// ErrAuth means the proxy rejected our credentials (401/403).
	ErrAuth = errors.New("serp: proxy authentication failed")
	// ErrRateLimited means the proxy throttled us (429). Retryable.
	ErrRateLimited = errors.New("serp: rate limited by proxy")
	// ErrUpstream means the proxy or Google returned a 5xx. Retryable.
	ErrUpstream = errors.New("serp: upstream failure")
	// ErrBadRequest means the request itself was malformed (other 4xx).
	ErrBadRequest = errors.New("serp: bad request")
	// ErrBlocked means the returned HTML is a captcha or consent interstitial.
	ErrBlocked = errors.New("serp: blocked by captcha or consent page")
)

// APIError carries the HTTP status behind a classified proxy failure.
type APIError struct {
	StatusCode int
	Kind       error
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
}

// Unwrap lets errors.Is match the sentinel kind.
func (e *APIError) Unwrap() error {
	return e.Kind
}

// classifyStatus maps an HTTP status from the proxy into a typed error.
// A nil return means the status is acceptable.
func classifyStatus(status int, detail string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return &APIError{StatusCode: status, Kind: ErrAuth, Detail: detail}
	case status == 429:
		return &APIError{StatusCode: status, Kind: ErrRateLimited, Detail: detail}
	case status >= 500:
		return &APIError{StatusCode: status, Kind: ErrUpstream, Detail: detail}
	default:
		return &APIError{StatusCode: status, Kind: ErrBadRequest, Detail: detail}
	}
}

// retryable reports whether a classified error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstream)
}
