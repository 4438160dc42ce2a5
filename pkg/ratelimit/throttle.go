package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Throttle enforces a minimum interval between dispatched requests.
// It is a token bucket with a burst of one, so the first request is never delayed.
type Throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
	strict   bool
	clock    Clock
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewThrottle creates a throttle. A non-positive interval disables throttling.
func NewThrottle(interval time.Duration, strict bool, clock Clock, logger zerolog.Logger) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &Throttle{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		strict:   strict,
		clock:    clock,
		logger:   logger,
	}
}

// Wait admits one request, sleeping until the interval has elapsed since the
// previous one. In strict mode it returns ErrLimitExceeded instead of sleeping.
// The returned duration is how long the caller was blocked.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	now := t.clock.Now()

	if t.strict {
		if !t.limiter.AllowN(now, 1) {
			throttleRejectionsTotal.WithLabelValues("requests").Inc()
			t.logger.Debug().
				Dur("interval", t.interval).
				Msg("Request rejected by strict throttle")
			return 0, ErrLimitExceeded
		}
		t.setLastRequest(now)
		return 0, nil
	}

	reservation := t.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return 0, ErrLimitExceeded
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		t.logger.Debug().
			Dur("delay", delay).
			Msg("Throttling request")
		throttleWaitSeconds.WithLabelValues("requests").Observe(delay.Seconds())

		if err := t.clock.Sleep(ctx, delay); err != nil {
			reservation.CancelAt(t.clock.Now())
			return 0, err
		}
	}

	t.setLastRequest(t.clock.Now())
	return delay, nil
}

// Interval returns the configured minimum interval (0 when unlimited).
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// LastRequest returns when the most recent request was admitted.
func (t *Throttle) LastRequest() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRequest
}

func (t *Throttle) setLastRequest(at time.Time) {
	t.mu.Lock()
	t.lastRequest = at
	t.mu.Unlock()
}
