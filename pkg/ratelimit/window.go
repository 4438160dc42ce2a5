package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// windowSlack is added to computed waits so the oldest start has strictly
// left the window when the caller wakes up.
const windowSlack = 10 * time.Millisecond

// Window caps the number of operation starts inside a rolling time window.
// It keeps at most limit timestamps and is safe for concurrent use.
type Window struct {
	limit  int
	size   time.Duration
	strict bool
	clock  Clock
	logger zerolog.Logger

	mu     sync.Mutex
	starts []time.Time
}

// NewWindow creates a rolling window admitting limit starts per size.
// A non-positive limit or size disables the window.
func NewWindow(limit int, size time.Duration, strict bool, clock Clock, logger zerolog.Logger) *Window {
	if clock == nil {
		clock = SystemClock()
	}
	return &Window{
		limit:  limit,
		size:   size,
		strict: strict,
		clock:  clock,
		logger: logger,
	}
}

// Admit records one start, first sleeping until the window has room.
// It returns how long the caller was blocked.
func (w *Window) Admit(ctx context.Context) (time.Duration, error) {
	if w.limit <= 0 || w.size <= 0 {
		return 0, ctx.Err()
	}

	var waited time.Duration
	for {
		w.mu.Lock()
		now := w.clock.Now()
		w.evict(now)
		if len(w.starts) < w.limit {
			w.starts = append(w.starts, now)
			w.mu.Unlock()
			return waited, nil
		}
		inWindow := len(w.starts)
		wait := w.size - now.Sub(w.starts[0]) + windowSlack
		w.mu.Unlock()

		if w.strict {
			throttleRejectionsTotal.WithLabelValues("downloads").Inc()
			w.logger.Debug().
				Int("starts", inWindow).
				Dur("window", w.size).
				Msg("Download rejected by strict window")
			return waited, ErrLimitExceeded
		}

		w.logger.Debug().
			Int("starts", inWindow).
			Dur("wait", wait).
			Msg("Download window full, waiting")
		throttleWaitSeconds.WithLabelValues("downloads").Observe(wait.Seconds())

		if err := w.clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// Len returns the number of starts currently inside the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.clock.Now())
	return len(w.starts)
}

func (w *Window) evict(now time.Time) {
	i := 0
	for i < len(w.starts) && now.Sub(w.starts[i]) > w.size {
		i++
	}
	if i > 0 {
		w.starts = append(w.starts[:0], w.starts[i:]...)
	}
}
