package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/biofetch/internal/testutil"
	"github.com/rs/zerolog"
)

var testEpoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", config.MaxRetries)
	}
	if config.Backoff != 5*time.Second {
		t.Errorf("Backoff = %v, want 5s", config.Backoff)
	}
	if len(config.RetryOn) != 1 || config.RetryOn[0] != ErrorClassRateLimit {
		t.Errorf("RetryOn = %v, want [rate_limit]", config.RetryOn)
	}
	if config.Jitter != 0 {
		t.Errorf("Jitter = %v, want 0", config.Jitter)
	}
}

func TestRetryConfig_BackoffFor(t *testing.T) {
	tests := []struct {
		name   string
		config RetryConfig
		want   []time.Duration
	}{
		{
			name:   "fixed",
			config: RetryConfig{Backoff: 5 * time.Second, Multiplier: 1},
			want:   []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:   "exponential 1.5",
			config: RetryConfig{Backoff: time.Second, Multiplier: 1.5},
			want:   []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond},
		},
		{
			name:   "capped",
			config: RetryConfig{Backoff: time.Second, Multiplier: 4, MaxBackoff: 10 * time.Second},
			want:   []time.Duration{time.Second, 4 * time.Second, 10 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				if got := tt.config.backoffFor(i + 1); got != want {
					t.Errorf("backoffFor(%d) = %v, want %v", i+1, got, want)
				}
			}
		})
	}
}

func TestRetryConfig_Jitter(t *testing.T) {
	config := RetryConfig{Jitter: 0.2}
	for i := 0; i < 100; i++ {
		got := config.jittered(10 * time.Second)
		if got < 8*time.Second || got > 12*time.Second {
			t.Fatalf("jittered() = %v, want within ±20%% of 10s", got)
		}
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"default", DefaultRetryConfig(), false},
		{"no retry", NoRetry(), false},
		{"negative retries", RetryConfig{MaxRetries: -1}, true},
		{"negative backoff", RetryConfig{Backoff: -time.Second}, true},
		{"jitter too large", RetryConfig{Jitter: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)

	callCount := 0
	attempts, err := retryWithBackoff(context.Background(), clock, DefaultRetryConfig(), zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1 and 1", callCount, attempts)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("Sleeps = %v, want none", clock.Sleeps())
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)
	config := RetryConfig{
		RetryOn:    []ErrorClass{ErrorClassRateLimit, ErrorClassServer},
		MaxRetries: 3,
		Backoff:    time.Second,
		Multiplier: 1.5,
	}

	callCount := 0
	attempts, err := retryWithBackoff(context.Background(), clock, config, zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		if callCount < 3 {
			return ErrorClassServer, errors.New("temporary error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected success after retry, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	want := []time.Duration{time.Second, 1500 * time.Millisecond}
	sleeps := clock.Sleeps()
	if len(sleeps) != len(want) {
		t.Fatalf("Sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)

	callCount := 0
	attempts, err := retryWithBackoff(context.Background(), clock, DefaultRetryConfig(), zerolog.Nop(), func(attempt int) (ErrorClass, error) {
		callCount++
		return ErrorClassRateLimit, &HTTPError{StatusCode: 429, Class: ErrorClassRateLimit, Attempts: attempt}
	})

	if callCount != 2 || attempts != 2 {
		t.Errorf("calls = %d, attempts = %d, want 2 and 2", callCount, attempts)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Attempts != 2 {
		t.Errorf("error = %#v, want *HTTPError with 2 attempts", err)
	}
}

func TestRetryWithBackoff_NonHTTPErrorExhausted(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)
	config := RetryConfig{RetryOn: []ErrorClass{ErrorClassNetwork}, MaxRetries: 2, Backoff: time.Millisecond}

	cause := errors.New("connection reset")
	_, err := retryWithBackoff(context.Background(), clock, config, zerolog.Nop(), func(int) (ErrorClass, error) {
		return ErrorClassNetwork, cause
	})

	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, cause) {
		t.Errorf("error = %v, want ErrRetryExhausted wrapping cause", err)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)

	callCount := 0
	_, err := retryWithBackoff(context.Background(), clock, DefaultRetryConfig(), zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return ErrorClassClient, &HTTPError{StatusCode: 400, Class: ErrorClassClient}
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call for client error, got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not be reported as exhausted retries")
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	clock := testutil.NewFakeClock(testEpoch)
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	_, err := retryWithBackoff(ctx, clock, DefaultRetryConfig(), zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		cancel()
		return ErrorClassRateLimit, &HTTPError{StatusCode: 429, Class: ErrorClassRateLimit}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("calls = %d, want 1", callCount)
	}
}
