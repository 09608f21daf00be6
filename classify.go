package quotagate

import (
	"errors"
	"net/http"
	"strings"
)

// RateLimitClassifier decides whether an upstream error means the upstream
// itself refused the call for budget reasons.
type RateLimitClassifier interface {
	IsRateLimit(err error) bool
}

// ClassifierFunc adapts a function to RateLimitClassifier.
type ClassifierFunc func(err error) bool

func (f ClassifierFunc) IsRateLimit(err error) bool { return f(err) }

// rateLimitPhrases are matched case-insensitively against error messages.
var rateLimitPhrases = []string{
	"quota",
	"rate limit",
	"rate-limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"resource_exhausted",
}

// DefaultClassifier recognises ErrUpstreamRateLimited, errors exposing an
// HTTP 429 status through StatusCode() or HTTPStatusCode(), and messages
// mentioning quota or rate limits.
type DefaultClassifier struct{}

var _ RateLimitClassifier = DefaultClassifier{}

func (DefaultClassifier) IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUpstreamRateLimited) {
		return true
	}

	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	var hsc interface{ HTTPStatusCode() int }
	if errors.As(err, &hsc) && hsc.HTTPStatusCode() == http.StatusTooManyRequests {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
