// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Classification errors.
	ErrNoHierarchy       = errors.New("no collection hierarchy available")
	ErrRateLimited       = errors.New("model rate limited")
	ErrRateLimitExceeded = errors.New("model rate limit retries exhausted")
	ErrTimeoutExceeded   = errors.New("model timeout retries exhausted")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrEmptyTitle        = errors.New("product has no title")

	// Catalog errors.
	ErrCatalogRateLimit = errors.New("catalog rate limit exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCatalogRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
