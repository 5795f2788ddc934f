package remote

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"google.golang.org/api/googleapi"
)

func TestExecuteWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := ExecuteWithRetry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, "t", logging.NewNoOpLogger(), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Errorf("result = %q, calls = %d", result, calls)
	}
}

func TestExecuteWithRetry_RetriesTransient(t *testing.T) {
	calls := 0
	result, err := ExecuteWithRetry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, "t", logging.NewNoOpLogger(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &googleapi.Error{Code: 503}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %q", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetry_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	_, err := ExecuteWithRetry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, "t", logging.NewNoOpLogger(), func() (string, error) {
		calls++
		return "", &googleapi.Error{Code: 404}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 404)", calls)
	}
	if utils.CodeOf(err) != utils.CodeNotFound {
		t.Errorf("CodeOf = %v", utils.CodeOf(err))
	}
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := ExecuteWithRetry(context.Background(), RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, "t", logging.NewNoOpLogger(), func() (string, error) {
		calls++
		return "", &googleapi.Error{Code: 503}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
	if utils.CodeOf(err) != utils.CodeServiceUnavailable {
		t.Errorf("CodeOf = %v", utils.CodeOf(err))
	}
}

func TestCalculateBackoff_HonorsRetryAfter(t *testing.T) {
	apiErr := &googleapi.Error{Code: 429}
	apiErr.Header = map[string][]string{"Retry-After": {"2"}}
	delay := calculateBackoff(time.Millisecond, 0, apiErr)
	if delay != 2*time.Second {
		t.Errorf("delay = %v, want 2s", delay)
	}
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	delay := calculateBackoff(time.Second, 20, &googleapi.Error{Code: 503})
	max := time.Duration(MaxRetryDelayMs)*time.Millisecond + MaxRetryDelayMs*time.Millisecond/4
	if delay > max {
		t.Errorf("delay = %v exceeds cap", delay)
	}
}
