package remote

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"google.golang.org/api/googleapi"
)

// MaxRetryDelayMs caps the exponential backoff delay
const MaxRetryDelayMs = 30000

// RetryPolicy configures the retry loop shared by all backend calls
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// ExecuteWithRetry executes a backend call with exponential backoff.
// Only transport-level retryable failures (429, 5xx) are retried;
// everything else is classified and returned immediately.
func ExecuteWithRetry[T any](ctx context.Context, policy RetryPolicy, traceID string, logger logging.Logger, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	log := logger.WithTraceID(traceID)
	start := time.Now()

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			log.Debug("Remote operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !isRetryable(lastErr) {
			return result, ClassifyError(lastErr, traceID, logger)
		}

		if attempt < policy.MaxRetries {
			delay := calculateBackoff(policy.BaseDelay, attempt, lastErr)
			log.Warn("Remote operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return result, ClassifyError(lastErr, traceID, logger)
}

// isRetryable checks if an error is retryable at the transport level
func isRetryable(err error) bool {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	// Honor Retry-After when the backend sends one
	if apiErr, ok := err.(*googleapi.Error); ok {
		retryAfter := apiErr.Header.Get("Retry-After")
		if retryAfter != "" {
			if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > MaxRetryDelayMs*time.Millisecond {
					return MaxRetryDelayMs * time.Millisecond
				}
				return delay
			}
		}
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > MaxRetryDelayMs*time.Millisecond {
		delay = MaxRetryDelayMs * time.Millisecond
	}

	// jitter within ±25%
	jitterRange := delay / 4
	if jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay = delay + jitter
	}
	if delay < 0 {
		delay = baseDelay
	}

	return delay
}
