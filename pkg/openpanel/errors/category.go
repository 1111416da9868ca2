// Package errors classifies delivery failures and retries transient ones.
//
// The package implements a small layered approach:
//   - Typed errors: configuration, encoding, transport, and HTTP status failures
//   - Categorization: decide whether another attempt can help
//   - Retry: repeat transient failures with exponential backoff
package errors

import (
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: connection refused, reset, DNS failure, client timeout.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: malformed base URL, unencodable payload, any HTTP status response.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Attempts is the number of attempts that have been made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Categorize determines how an error should be handled.
//
// Only transport-level failures are transient. An HTTP response of any
// status means the request reached the server, so it is never retried.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	// Already-categorized errors keep their category
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return CategoryPermanent
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// Attempts returns the number of attempts recorded on err, or 0.
func Attempts(err error) int {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Attempts
	}
	return 0
}
