// Package fault defines the behavioural error classes shared across the
// compliance and diagnostic cores, plus the retry/backoff helper used for
// transient collaborator failures.
package fault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthentication covers missing, invalid, expired, or revoked
	// credentials. Maps to HTTP 401. Never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization covers policy denials. Maps to HTTP 403. Audited.
	ErrAuthorization = errors.New("authorization denied")

	// ErrValidation covers malformed input. Maps to HTTP 422. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown identifiers. Maps to HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers duplicate registrations and state transitions that
	// violate a lifecycle DAG. Maps to HTTP 409.
	ErrConflict = errors.New("conflict")

	// ErrTransient covers timeouts and network errors from collaborators
	// (LLM, graph, shared store). Callers retry with exponential backoff.
	ErrTransient = errors.New("transient failure")

	// ErrFatal covers unrecoverable conditions such as a corrupt audit chain
	// or a missing signing secret. Startup must abort; no silent healing.
	ErrFatal = errors.New("fatal")
)

// Authenticationf wraps a formatted message as an authentication failure.
func Authenticationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAuthentication}, args...)...)
}

// Authorizationf wraps a formatted message as an authorization denial.
func Authorizationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAuthorization}, args...)...)
}

// Validationf wraps a formatted message as a validation failure.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps a formatted message as a not-found error.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps a formatted message as a conflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Transientf wraps a formatted message as a transient failure.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTransient}, args...)...)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// Retry runs fn up to maxAttempts times, sleeping 2^attempt seconds between
// attempts. Only transient errors are retried; the last error is returned.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
