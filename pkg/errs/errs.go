// Package errs defines the failure taxonomy shared by the voice pipeline.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidInput marks a request that can never succeed. It is not retried.
var ErrInvalidInput = errors.New("invalid input")

// Invalid wraps ErrInvalidInput with detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Kind classifies an upstream provider failure.
type Kind string

const (
	KindProvider    Kind = "provider_error"
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
)

// ProviderError is a failure from an external TTS or LLM provider.
type ProviderError struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus maps the failure to the status returned to API clients.
func (e *ProviderError) HTTPStatus() int {
	switch e.Kind {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// FromStatus builds a ProviderError for a non-2xx upstream response.
func FromStatus(provider string, status int, body string) *ProviderError {
	kind := KindProvider
	if status == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        fmt.Errorf("%s", body),
	}
}

// FromTransport classifies a transport-level error from an upstream call.
func FromTransport(provider string, err error) *ProviderError {
	kind := KindProvider
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.Kind != KindRateLimited {
		return false
	}
	return true
}

// StorageError is a failure from a cache tier. Callers degrade rather than fail.
type StorageError struct {
	Tier string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError, or returns nil.
func Storage(tier, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Tier: tier, Op: op, Err: err}
}

// IsStorage reports whether err came from a cache tier.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
