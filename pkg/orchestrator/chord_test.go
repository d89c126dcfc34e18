package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunWithRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	val, err := RunWithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}, func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RunWithRetry() error = %v", err)
	}
	if val != "ok" {
		t.Errorf("val = %v, want ok", val)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRunWithRetryExhausts(t *testing.T) {
	attempts := 0
	_, err := RunWithRetry(context.Background(), RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond}, func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRunWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunWithRetry(ctx, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Hour}, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("fails")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}
