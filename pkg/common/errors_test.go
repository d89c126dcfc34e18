package common

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := &RetryableError{Op: "fetch_page", Err: base}

	if !IsRetryable(wrapped) {
		t.Error("expected RetryableError to be classified as retryable")
	}
	if IsRetryable(&ResourceMissingError{Resource: ResourceBuildLogs, Reason: "logs expired"}) {
		t.Error("ResourceMissingError must not be classified as retryable")
	}
	if IsRetryable(fmt.Errorf("wrapped: %w", wrapped)) != true {
		t.Error("IsRetryable should see through fmt.Errorf wrapping")
	}
}

func TestIsResourceMissing(t *testing.T) {
	err := &ResourceMissingError{Resource: ResourceBuildLogs, Reason: "expired"}
	if !IsResourceMissing(err) {
		t.Error("expected ResourceMissingError to be classified as resource-missing")
	}
	if IsResourceMissing(&RetryableError{Op: "x", Err: errors.New("boom")}) {
		t.Error("RetryableError must not be classified as resource-missing")
	}
}

func TestRateLimitedPrimaryErrorMessage(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := &RateLimitedPrimaryError{RetryAt: at}
	want := "all tokens rate limited until 2026-01-01T00:00:00Z"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
