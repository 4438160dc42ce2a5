package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/biofetch/internal/testutil"
	"github.com/rs/zerolog"
)

func TestWindow_BurstOfDownloads(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	w := NewWindow(DefaultDownloadStarts, DefaultDownloadWindow, false, clock, zerolog.Nop())

	var delayed []int
	for i := 1; i <= 21; i++ {
		waited, err := w.Admit(context.Background())
		if err != nil {
			t.Fatalf("Admit() #%d error = %v", i, err)
		}
		if waited > 0 {
			delayed = append(delayed, i)
			if waited < DefaultDownloadWindow {
				t.Errorf("Admit() #%d waited %v, want at least %v", i, waited, DefaultDownloadWindow)
			}
		}
	}

	want := []int{6, 11, 16, 21}
	if len(delayed) != len(want) {
		t.Fatalf("delayed calls = %v, want %v", delayed, want)
	}
	for i := range want {
		if delayed[i] != want[i] {
			t.Errorf("delayed calls = %v, want %v", delayed, want)
			break
		}
	}
}

func TestWindow_NeverMoreThanLimitInsideWindow(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	w := NewWindow(3, time.Second, false, clock, zerolog.Nop())

	var admitted []time.Time
	for i := 0; i < 12; i++ {
		if _, err := w.Admit(context.Background()); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		admitted = append(admitted, clock.Now())
		clock.Advance(100 * time.Millisecond)
	}

	for i := range admitted {
		inside := 0
		for j := range admitted {
			d := admitted[j].Sub(admitted[i])
			if d >= 0 && d < time.Second {
				inside++
			}
		}
		if inside > 3 {
			t.Errorf("%d starts within one window beginning at #%d, want <= 3", inside, i)
		}
	}
}

func TestWindow_Strict(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	w := NewWindow(2, 10*time.Second, true, clock, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := w.Admit(context.Background()); err != nil {
			t.Fatalf("Admit() #%d error = %v", i+1, err)
		}
	}

	_, err := w.Admit(context.Background())
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Admit() error = %v, want ErrLimitExceeded", err)
	}
	if w.Len() != 2 {
		t.Errorf("Len() = %d, want 2", w.Len())
	}

	clock.Advance(10*time.Second + time.Millisecond)
	if _, err := w.Admit(context.Background()); err != nil {
		t.Errorf("Admit() after window error = %v", err)
	}
}

func TestWindow_Disabled(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		size  time.Duration
	}{
		{"zero limit", 0, 10 * time.Second},
		{"zero size", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewFakeClock(epoch)
			w := NewWindow(tt.limit, tt.size, false, clock, zerolog.Nop())
			for i := 0; i < 100; i++ {
				if _, err := w.Admit(context.Background()); err != nil {
					t.Fatalf("Admit() error = %v", err)
				}
			}
			if len(clock.Sleeps()) != 0 {
				t.Errorf("disabled window slept %v", clock.Sleeps())
			}
		})
	}
}

func TestWindow_ContextCancelledWhileFull(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	w := NewWindow(1, time.Minute, false, clock, zerolog.Nop())
	w.Admit(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Admit(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Admit() error = %v, want context.Canceled", err)
	}
	if w.Len() != 1 {
		t.Errorf("Len() = %d, want 1", w.Len())
	}
}
