// Package llm decorates llmclient.Client values with cross-cutting concerns
// (rate limiting, provider cool-down, logging, call observation).
package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"kiri/internal/llmclient"
)

// Middleware decorates a Client.
type Middleware func(llmclient.Client) llmclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.Client, mws ...Middleware) llmclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate using rpsLimiter.
// If rps <= 0, the limiter is disabled. Close stops the refill goroutine.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next llmclient.Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Unwrap() llmclient.Client { return c.next }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}
func (c *rateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, prompt)
}

// -------- Provider cool-down --------

// Cooldown short-circuits calls with llmclient.ErrRateLimited while the
// provider's last rate-limit headers say its quota is exhausted. Clients
// that do not expose headers only cool down after an explicit 429, for
// fallback. The call is never retried; the caller falls through to its
// next tier.
func Cooldown(fallback time.Duration, now func() time.Time) Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next llmclient.Client) llmclient.Client {
		return &cooling{next: next, fallback: fallback, now: now}
	}
}

type cooling struct {
	next     llmclient.Client
	fallback time.Duration
	now      func() time.Time

	mu    sync.Mutex
	until time.Time
}

func (c *cooling) Name() string { return c.next.Name() }
func (c *cooling) Close() error { return c.next.Close() }
func (c *cooling) Unwrap() llmclient.Client { return c.next }

func (c *cooling) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	blocked := c.now().Before(c.until)
	c.mu.Unlock()
	if blocked {
		return "", llmclient.ErrRateLimited
	}
	out, err := c.next.Generate(ctx, prompt)

	var wait time.Duration
	if aware, ok := headerAware(c.next); ok {
		if h, ok := aware.LastRateLimitHeaders(); ok && h.Exhausted() {
			wait = h.NextWait()
		}
	}
	if wait == 0 && isRateLimited(err) {
		wait = c.fallback
	}
	if wait > 0 {
		c.mu.Lock()
		c.until = c.now().Add(wait)
		c.mu.Unlock()
	}
	return out, err
}

// headerAware walks down the middleware chain to the first client that
// exposes provider rate-limit headers.
func headerAware(c llmclient.Client) (llmclient.RateLimitHeaderAwareClient, bool) {
	for c != nil {
		if aware, ok := c.(llmclient.RateLimitHeaderAwareClient); ok {
			return aware, true
		}
		u, ok := c.(interface{ Unwrap() llmclient.Client })
		if !ok {
			return nil, false
		}
		c = u.Unwrap()
	}
	return nil, false
}

// -------- Logging --------

// WithLogging logs request size, latency and errors. A nil logger disables it.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next llmclient.Client) llmclient.Client {
		return &logging{next: next, log: logger.With(zap.String("provider", next.Name()))}
	}
}

type logging struct {
	next llmclient.Client
	log  *zap.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Unwrap() llmclient.Client { return l.next }
func (l *logging) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := l.next.Generate(ctx, prompt)
	if err != nil {
		l.log.Warn("llm call failed",
			zap.Int("prompt_bytes", len(prompt)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("rate_limited", isRateLimited(err)),
			zap.Error(err))
		return out, err
	}
	l.log.Debug("llm call",
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("response_bytes", len(out)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// -------- Observation --------

// ObserveFunc receives the outcome of each call.
type ObserveFunc func(provider string, elapsed time.Duration, err error)

// WithObserver reports every call to fn; metrics hook in here.
func WithObserver(fn ObserveFunc) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if fn == nil {
			return next
		}
		return &observed{next: next, fn: fn}
	}
}

type observed struct {
	next llmclient.Client
	fn   ObserveFunc
}

func (o *observed) Name() string { return o.next.Name() }
func (o *observed) Close() error { return o.next.Close() }
func (o *observed) Unwrap() llmclient.Client { return o.next }
func (o *observed) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := o.next.Generate(ctx, prompt)
	o.fn(o.next.Name(), time.Since(start), err)
	return out, err
}
