package soar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"triage/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testTimeoutError struct{ error }

func (e *testTimeoutError) Timeout() bool   { return true }
func (e *testTimeoutError) Temporary() bool { return false }

func fastRetryConfig(t *testing.T, attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Logger:      zaptest.NewLogger(t).Sugar(),
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 1*time.Second, config.BaseDelay)
	assert.Equal(t, 120*time.Second, config.MaxDelay)
	assert.Equal(t, 0.1, config.Jitter)
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, config.ErrorTypeDelays[ErrorTypeRateLimit])
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"context_deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"timeout_error", &testTimeoutError{errors.New("i/o")}, ErrorTypeTimeout},
		{"http_429", &HTTPStatusError{Code: 429}, ErrorTypeRateLimit},
		{"http_503", &HTTPStatusError{Code: 503}, ErrorTypeTimeout},
		{"http_500", &HTTPStatusError{Code: 500}, ErrorTypeTemporary},
		{"http_404", &HTTPStatusError{Code: 404}, ErrorTypePermanent},
		{"connection_refused", &net.OpError{Err: syscall.ECONNREFUSED}, ErrorTypeNetwork},
		{"timeout_message", errors.New("Operation Timed Out"), ErrorTypeTimeout},
		{"rate_limit_message", errors.New("rate limit exceeded"), ErrorTypeRateLimit},
		{"dns_message", errors.New("dns lookup failed"), ErrorTypeNetwork},
		{"temporary_message", errors.New("temporary failure"), ErrorTypeTemporary},
		{"permanent_wrapper", Permanent(errors.New("timeout")), ErrorTypePermanent},
		{"validation", fmt.Errorf("bad input: %w", core.ErrValidation), ErrorTypePermanent},
		{"unknown", errors.New("unknown error"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, StatusError(204))
	err := StatusError(429)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeRateLimit, ClassifyError(err))
	assert.Equal(t, "HTTP 429: Too Many Requests", err.Error())
}

func TestExecuteWithRetry_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	var retried []int
	config := fastRetryConfig(t, 3)
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := ExecuteWithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}, config)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestExecuteWithRetry_MaxAttempts(t *testing.T) {
	attempts := 0
	err := ExecuteWithRetry(context.Background(), func() error {
		attempts++
		return errors.New("connection refused")
	}, fastRetryConfig(t, 2))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithRetry_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	cause := &HTTPStatusError{Code: 401, Message: "Unauthorized"}
	err := ExecuteWithRetry(context.Background(), func() error {
		attempts++
		return cause
	}, fastRetryConfig(t, 5))

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, attempts)
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := ExecuteWithRetry(ctx, func() error {
		called = true
		return nil
	}, fastRetryConfig(t, 1))

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCalculateDelay(t *testing.T) {
	config := RetryConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  1 * time.Second,
		ErrorTypeDelays: map[ErrorType][]time.Duration{
			ErrorTypeRateLimit: {500 * time.Millisecond},
		},
	}

	assert.Equal(t, 500*time.Millisecond, calculateDelay(0, ErrorTypeRateLimit, config))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(1, ErrorTypeRateLimit, config))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(2, ErrorTypeUnknown, config))
	assert.Equal(t, 1*time.Second, calculateDelay(10, ErrorTypeUnknown, config))

	config.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := calculateDelay(0, ErrorTypeUnknown, config)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
