package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, fastRetryConfig(), nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, fastRetryConfig(), IsRetryableNetworkError)

	if err != nil {
		t.Errorf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("connection refused")
	err := Retry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig(), IsRetryableNetworkError)

	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableAbortsImmediately(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return errors.New("schema validation failed")
	}, fastRetryConfig(), IsRetryableNetworkError)

	if err == nil {
		t.Error("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"unavailable", errors.New("service unavailable"), true},
		{"rate limited", errors.New("rate limit exceeded"), true},
		{"schema mismatch", errors.New("column \"script\" does not exist"), false},
		{"auth failure", errors.New("invalid api key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableNetworkError(tt.err); got != tt.retryable {
				t.Errorf("IsRetryableNetworkError(%v) = %v, expected %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestReconnect_SucceedsEventually(t *testing.T) {
	config := &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Millisecond,
	}

	calls := 0
	err := Reconnect(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("dial failed")
		}
		return nil
	}, config)

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestReconnect_ExhaustsAttempts(t *testing.T) {
	config := &ReconnectConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Millisecond,
	}

	err := Reconnect(context.Background(), func() error {
		return errors.New("dial failed")
	}, config)
	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}
}

func TestReconnect_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Reconnect(ctx, func() error {
		return errors.New("dial failed")
	}, DefaultReconnectConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
