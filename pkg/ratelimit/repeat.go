package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AdvisoryLevel grades a repeat-download advisory.
type AdvisoryLevel string

const (
	// AdvisoryNotice is emitted once when a resource reaches the warn threshold.
	AdvisoryNotice AdvisoryLevel = "notice"

	// AdvisoryWarning is emitted for every download at or above the limit.
	AdvisoryWarning AdvisoryLevel = "warning"
)

// Advisory tells the caller a resource has been downloaded repeatedly.
// It is informational only and never blocks a download.
type Advisory struct {
	Resource string
	Count    int64
	Limit    int
	Period   time.Duration
	Level    AdvisoryLevel
	Message  string
}

// RepeatStore counts events per key within a period.
type RepeatStore interface {
	// Increment adds one to the count for key and returns the new count.
	// The count resets once period has elapsed since the first increment.
	Increment(ctx context.Context, key string, period time.Duration) (int64, error)
}

// RepeatTracker turns download counts into advisories.
type RepeatTracker struct {
	store  RepeatStore
	warnAt int
	limit  int
	period time.Duration
}

// NewRepeatTracker creates a tracker. Thresholds of zero are disabled.
func NewRepeatTracker(store RepeatStore, warnAt, limit int, period time.Duration) *RepeatTracker {
	if period <= 0 {
		period = DefaultRepeatPeriod
	}
	return &RepeatTracker{
		store:  store,
		warnAt: warnAt,
		limit:  limit,
		period: period,
	}
}

// Record counts one download of resource and returns an advisory when a
// threshold is reached, or nil.
func (r *RepeatTracker) Record(ctx context.Context, resource string) (*Advisory, error) {
	if r == nil || r.store == nil || (r.warnAt <= 0 && r.limit <= 0) {
		return nil, nil
	}

	count, err := r.store.Increment(ctx, resource, r.period)
	if err != nil {
		return nil, fmt.Errorf("count downloads of %s: %w", resource, err)
	}

	advisory := &Advisory{
		Resource: resource,
		Count:    count,
		Limit:    r.limit,
		Period:   r.period,
	}

	switch {
	case r.limit > 0 && count >= int64(r.limit):
		advisory.Level = AdvisoryWarning
		advisory.Message = fmt.Sprintf(
			"warning: %s downloaded %d times; upstream allows %d downloads per %s",
			resource, count, r.limit, formatPeriod(r.period))
	case r.warnAt > 0 && count == int64(r.warnAt):
		advisory.Level = AdvisoryNotice
		advisory.Message = fmt.Sprintf(
			"heads-up: %s downloaded %d times within %s",
			resource, count, formatPeriod(r.period))
	default:
		return nil, nil
	}

	downloadAdvisoriesTotal.WithLabelValues(string(advisory.Level)).Inc()
	return advisory, nil
}

func formatPeriod(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d == 365*day:
		return "year"
	case d%day == 0:
		return fmt.Sprintf("%d days", d/day)
	default:
		return d.String()
	}
}

// MemoryRepeatStore is a process-local RepeatStore.
type MemoryRepeatStore struct {
	mu     sync.Mutex
	clock  Clock
	counts map[string]*repeatCount
}

type repeatCount struct {
	n       int64
	expires time.Time
}

// NewMemoryRepeatStore creates an in-memory store using clock for expiry.
func NewMemoryRepeatStore(clock Clock) *MemoryRepeatStore {
	if clock == nil {
		clock = SystemClock()
	}
	return &MemoryRepeatStore{
		clock:  clock,
		counts: make(map[string]*repeatCount),
	}
}

// Increment implements RepeatStore.
func (m *MemoryRepeatStore) Increment(_ context.Context, key string, period time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	c, ok := m.counts[key]
	if !ok || !now.Before(c.expires) {
		c = &repeatCount{expires: now.Add(period)}
		m.counts[key] = c
	}
	c.n++
	return c.n, nil
}
