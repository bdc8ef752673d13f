package soar

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"triage/core"

	"go.uber.org/zap"
)

// ErrorType represents the category of error for retry logic
type ErrorType string

const (
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeTemporary ErrorType = "temporary"
	ErrorTypePermanent ErrorType = "permanent"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// RetryConfig defines retry behavior for different error types
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (0 = no retries)
	MaxAttempts int

	// BaseDelay is the initial delay before first retry
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// ErrorTypeDelays maps error types to their specific delay sequences
	ErrorTypeDelays map[ErrorType][]time.Duration

	// Jitter adds randomness to the delay.
	// Value between 0.0 (no jitter) and 1.0 (100% jitter)
	Jitter float64

	Logger *zap.SugaredLogger

	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the retry configuration used for playbook stages
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    120 * time.Second,
		Jitter:      0.1,
		ErrorTypeDelays: map[ErrorType][]time.Duration{
			ErrorTypeTimeout: {
				5 * time.Second,
				10 * time.Second,
				20 * time.Second,
			},
			// integrations rate limit per minute
			ErrorTypeRateLimit: {
				60 * time.Second,
				120 * time.Second,
			},
			ErrorTypeNetwork: {
				5 * time.Second,
				10 * time.Second,
				20 * time.Second,
			},
			ErrorTypeTemporary: {
				1 * time.Second,
				2 * time.Second,
				4 * time.Second,
			},
		},
	}
}

// PermanentError marks a stage failure that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that ClassifyError reports it as permanent
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ClassifyError determines the error type for retry logic
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return ErrorTypePermanent
	}

	// Malformed case data does not get better by retrying
	if errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrType) || errors.Is(err, core.ErrFatal) {
		return ErrorTypePermanent
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode() {
		case http.StatusTooManyRequests:
			return ErrorTypeRateLimit
		case http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusRequestTimeout:
			return ErrorTypeTimeout
		case http.StatusInternalServerError:
			return ErrorTypeTemporary
		case http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound:
			return ErrorTypePermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.EPIPE) {
			return ErrorTypeNetwork
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "timed out") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return ErrorTypeTimeout
	}
	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return ErrorTypeRateLimit
	}
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") {
		return ErrorTypeNetwork
	}
	if strings.Contains(errMsg, "temporary") {
		return ErrorTypeTemporary
	}

	return ErrorTypeUnknown
}

// ShouldRetry determines if an error is retryable
func ShouldRetry(err error) bool {
	return ClassifyError(err) != ErrorTypePermanent
}

// ExecuteWithRetry executes fn until it succeeds, fails permanently, runs out of
// attempts or ctx is done. fn should be idempotent.
func ExecuteWithRetry(ctx context.Context, fn func() error, config RetryConfig) error {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	var lastErr error
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before retry attempt %d: %w", attempt+1, err)
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				config.Logger.Infof("Operation succeeded after %d retries", attempt)
			}
			return nil
		}

		errorType := ClassifyError(lastErr)
		if errorType == ErrorTypePermanent {
			config.Logger.Warnf("Error is not retryable (type: %s): %v", errorType, lastErr)
			return fmt.Errorf("non-retryable error: %w", lastErr)
		}

		if attempt >= config.MaxAttempts {
			config.Logger.Errorf("Max retry attempts (%d) exceeded for error type %s: %v",
				config.MaxAttempts, errorType, lastErr)
			return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
		}

		delay := calculateDelay(attempt, errorType, config)

		config.Logger.Infow("Retry scheduled",
			"attempt", attempt+1,
			"max_attempts", config.MaxAttempts,
			"error_type", errorType,
			"delay", delay,
			"error", lastErr)

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
		}

		attempt++
	}
}

// calculateDelay picks the error-type delay for attempt, falling back to exponential
// backoff from BaseDelay, capped at MaxDelay and spread by Jitter.
func calculateDelay(attempt int, errorType ErrorType, config RetryConfig) time.Duration {
	var delay time.Duration

	if delays, ok := config.ErrorTypeDelays[errorType]; ok && attempt < len(delays) {
		delay = delays[attempt]
	} else {
		delay = config.BaseDelay * time.Duration(1<<uint(attempt))
	}

	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.Jitter > 0 {
		jitterAmount := float64(delay) * config.Jitter
		jitterDelta := (rand.Float64()*2 - 1) * jitterAmount
		delay += time.Duration(jitterDelta)
		if delay < 0 {
			delay = config.BaseDelay
		}
	}

	return delay
}

// HTTPStatusError wraps an HTTP status code returned by an integration
type HTTPStatusError struct {
	Code    int
	Message string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

func (e *HTTPStatusError) StatusCode() int {
	return e.Code
}

// StatusError converts a non-2xx status code into an HTTPStatusError
func StatusError(code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &HTTPStatusError{Code: code, Message: http.StatusText(code)}
}
