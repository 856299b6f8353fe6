package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestInvalidWrapsSentinel(t *testing.T) {
	err := Invalid("agent %q", "Bad Agent")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatal("expected ErrInvalidInput")
	}
	if Retryable(err) {
		t.Error("invalid input must not be retryable")
	}
}

func TestFromStatus(t *testing.T) {
	rl := FromStatus("elevenlabs", http.StatusTooManyRequests, "slow down")
	if rl.Kind != KindRateLimited || rl.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("unexpected: %+v", rl)
	}
	if !Retryable(rl) {
		t.Error("rate limit should be retryable")
	}

	bad := FromStatus("openai", http.StatusUnauthorized, "bad key")
	if Retryable(bad) {
		t.Error("401 should not be retryable")
	}
	if bad.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", bad.HTTPStatus())
	}

	down := FromStatus("openai", http.StatusServiceUnavailable, "down")
	if !Retryable(down) {
		t.Error("503 should be retryable")
	}
}

func TestFromTransportTimeout(t *testing.T) {
	err := FromTransport("openai", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if err.Kind != KindTimeout {
		t.Errorf("expected timeout, got %s", err.Kind)
	}
	if err.HTTPStatus() != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", err.HTTPStatus())
	}
}

func TestStorage(t *testing.T) {
	if Storage("cold", "get", nil) != nil {
		t.Error("nil error should stay nil")
	}
	err := fmt.Errorf("lookup: %w", Storage("cold", "get", errors.New("disk full")))
	if !IsStorage(err) {
		t.Error("expected storage error")
	}
}
