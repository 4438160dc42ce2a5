package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/biofetch/internal/testutil"
	"github.com/rs/zerolog"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestThrottle_FirstRequestNotDelayed(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	th := NewThrottle(400*time.Millisecond, false, clock, zerolog.Nop())

	waited, err := th.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited != 0 {
		t.Errorf("first Wait() waited %v, want 0", waited)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("Sleeps = %v, want none", clock.Sleeps())
	}
}

func TestThrottle_BackToBackRequests(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		calls    int
		want     time.Duration
	}{
		{"ncbi without key", 400 * time.Millisecond, 4, 1200 * time.Millisecond},
		{"ncbi with key", 120 * time.Millisecond, 3, 240 * time.Millisecond},
		{"five per second", IntervalFromRPS(5), 6, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewFakeClock(epoch)
			th := NewThrottle(tt.interval, false, clock, zerolog.Nop())

			for i := 0; i < tt.calls; i++ {
				if _, err := th.Wait(context.Background()); err != nil {
					t.Fatalf("Wait() #%d error = %v", i+1, err)
				}
			}

			if got := clock.TotalSlept(); got != tt.want {
				t.Errorf("TotalSlept() = %v, want %v", got, tt.want)
			}
			for _, d := range clock.Sleeps() {
				if d > tt.interval {
					t.Errorf("single sleep %v exceeds interval %v", d, tt.interval)
				}
			}
		})
	}
}

func TestThrottle_IdleGapResetsDelay(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	th := NewThrottle(400*time.Millisecond, false, clock, zerolog.Nop())

	th.Wait(context.Background())
	clock.Advance(time.Second)

	waited, err := th.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited != 0 {
		t.Errorf("Wait() after idle gap waited %v, want 0", waited)
	}
	if !th.LastRequest().Equal(epoch.Add(time.Second)) {
		t.Errorf("LastRequest() = %v, want %v", th.LastRequest(), epoch.Add(time.Second))
	}
}

func TestThrottle_Unlimited(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	th := NewThrottle(0, false, clock, zerolog.Nop())

	for i := 0; i < 50; i++ {
		if _, err := th.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("unlimited throttle slept %v", clock.Sleeps())
	}
	if th.Interval() != 0 {
		t.Errorf("Interval() = %v, want 0", th.Interval())
	}
}

func TestThrottle_Strict(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	th := NewThrottle(time.Second, true, clock, zerolog.Nop())

	if _, err := th.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	_, err := th.Wait(context.Background())
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("second Wait() error = %v, want ErrLimitExceeded", err)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("strict throttle slept %v", clock.Sleeps())
	}

	clock.Advance(time.Second)
	if _, err := th.Wait(context.Background()); err != nil {
		t.Errorf("Wait() after interval error = %v", err)
	}
}

func TestThrottle_ContextCancelled(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	th := NewThrottle(time.Second, false, clock, zerolog.Nop())
	th.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := th.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestIntervalFromRPS(t *testing.T) {
	tests := []struct {
		rps  float64
		want time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, time.Second},
		{5, 200 * time.Millisecond},
		{10, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := IntervalFromRPS(tt.rps); got != tt.want {
			t.Errorf("IntervalFromRPS(%v) = %v, want %v", tt.rps, got, tt.want)
		}
	}
}

func TestSystemClock_SleepHonoursContext(t *testing.T) {
	clock := SystemClock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := clock.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Sleep() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Sleep() did not return on context deadline")
	}
}
