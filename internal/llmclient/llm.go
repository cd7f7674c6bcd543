// Package llmclient holds thin provider clients for the remote classifier
// tiers. Cross-cutting concerns (rate limiting, logging) are applied by the
// middleware chain in package llm.
package llmclient

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidJSON = errors.New("invalid json from LLM")
	// ErrRateLimited marks a provider quota rejection. It is a tier failure,
	// never retried within the same invocation.
	ErrRateLimited = errors.New("llm provider rate limited")
	ErrEmpty       = errors.New("empty response from LLM")
)

// Client sends one prompt and returns the raw text of the model's reply.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match HTTP 429.
func (e *StatusError) Unwrap() error {
	if e.Code == 429 {
		return ErrRateLimited
	}
	return nil
}
