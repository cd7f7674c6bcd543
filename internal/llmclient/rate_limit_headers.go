package llmclient

import (
	"time"
)

// RateLimitHeaders represents normalized provider rate-limit signals.
type RateLimitHeaders struct {
	RetryAfterSeconds int

	LimitRequests     int
	LimitTokens       int
	RemainingRequests int
	RemainingTokens   int

	ResetRequests time.Duration
	ResetTokens   time.Duration
}

type RateLimitHeaderHandler func(headers RateLimitHeaders)

// RateLimitHeaderAwareClient is an optional interface for clients that expose
// parsed provider rate-limit headers.
type RateLimitHeaderAwareClient interface {
	SetRateLimitHeaderHandler(handler RateLimitHeaderHandler)
	LastRateLimitHeaders() (RateLimitHeaders, bool)
}

// Exhausted reports whether the provider signalled that no quota remains.
func (h RateLimitHeaders) Exhausted() bool {
	return h.RetryAfterSeconds > 0 ||
		(h.LimitRequests > 0 && h.RemainingRequests == 0) ||
		(h.LimitTokens > 0 && h.RemainingTokens == 0)
}

// NextWait converts the signals into a cool-down before the provider should
// be tried again. Zero means no wait.
func (h RateLimitHeaders) NextWait() time.Duration {
	if h.RetryAfterSeconds > 0 {
		return time.Duration(h.RetryAfterSeconds) * time.Second
	}
	if h.LimitTokens > 0 && h.RemainingTokens == 0 && h.ResetTokens > 0 {
		return h.ResetTokens
	}
	if h.LimitRequests > 0 && h.RemainingRequests == 0 && h.ResetRequests > 0 {
		return h.ResetRequests
	}
	return 0
}
