package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the failure class the executor dispatches on.
type Kind int

const (
	KindGeneric Kind = iota
	KindRateLimit
	KindContentSafety
	KindInvalidRequest
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindContentSafety:
		return "content_safety"
	case KindInvalidRequest:
		return "invalid_request"
	case KindCancelled:
		return "cancelled"
	default:
		return "generic"
	}
}

// ErrCancelled marks a user-initiated stop.
var ErrCancelled = errors.New("translation cancelled by user")

// RateLimitError is a quota or HTTP 429 response.
type RateLimitError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// ContentSafetyError is a blocked or filtered response.
type ContentSafetyError struct {
	Provider string
	Reason   string
}

func (e *ContentSafetyError) Error() string {
	return fmt.Sprintf("%s: response blocked by content safety filter: %s", e.Provider, e.Reason)
}

// InvalidRequestError covers bad credentials, unknown models and invalid
// arguments.
type InvalidRequestError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: invalid request (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

var (
	safetyPatterns = []string{"safety", "blocked", "prohibited", "recitation", "harm_category", "content_filter", "empty response"}
	quotaPatterns  = []string{"resource_exhausted", "quota", "rate limit", "too many requests"}
)

// Classify maps an error to its Kind. Untyped errors are matched against
// known message patterns; anything unrecognized is KindGeneric.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return KindRateLimit
	}
	var cs *ContentSafetyError
	if errors.As(err, &cs) {
		return KindContentSafety
	}
	var ir *InvalidRequestError
	if errors.As(err, &ir) {
		return KindInvalidRequest
	}

	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return KindRateLimit
		}
	}
	for _, p := range safetyPatterns {
		if strings.Contains(msg, p) {
			return KindContentSafety
		}
	}
	return KindGeneric
}

// statusError converts a non-OK HTTP status into a typed error.
func statusError(provider string, status int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 500 {
		body = body[:500]
	}
	switch status {
	case http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, StatusCode: status, Message: body}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return &InvalidRequestError{Provider: provider, StatusCode: status, Message: body}
	}
	return fmt.Errorf("%s: API returned status %d: %s", provider, status, body)
}
