// Package ratelimit implements the per-client rate state used by the fetcher:
// a minimum-interval request throttle, a rolling window capping download
// starts, and an advisory counter for repeated downloads of the same resource.
//
// State is owned by exactly one client. Nothing in this package is global, so
// independent clients for different upstream APIs never interfere.
package ratelimit

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrLimitExceeded is returned in strict mode when a request or download would
// have to wait for the limiter instead of being admitted immediately.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Defaults observed across the upstream APIs.
const (
	// DefaultDownloadStarts is the number of download starts admitted per window.
	DefaultDownloadStarts = 5

	// DefaultDownloadWindow is the rolling window for download starts.
	DefaultDownloadWindow = 10 * time.Second

	// DefaultRepeatWarnAt emits a heads-up once a resource reaches this many downloads.
	DefaultRepeatWarnAt = 15

	// DefaultRepeatLimit emits a warning for every download at or above this count.
	DefaultRepeatLimit = 20

	// DefaultRepeatPeriod is the period over which repeat downloads are counted.
	DefaultRepeatPeriod = 365 * 24 * time.Hour
)

// Config holds the tunables for a State.
type Config struct {
	// MinInterval is the minimum spacing between dispatched requests.
	// Zero disables request throttling.
	MinInterval time.Duration

	// Strict makes limiters return ErrLimitExceeded instead of waiting.
	Strict bool

	// DownloadStarts caps download starts per DownloadWindow. Zero disables the cap.
	DownloadStarts int
	DownloadWindow time.Duration

	// Repeat-download advisory thresholds. Zero values disable the advisory.
	RepeatWarnAt int
	RepeatLimit  int
	RepeatPeriod time.Duration

	// RepeatStore counts downloads per resource. Defaults to an in-memory store.
	RepeatStore RepeatStore

	Clock  Clock
	Logger zerolog.Logger
}

// DefaultConfig returns the conventions of the bulk-download APIs:
// no request throttle, 5 download starts per 10 seconds and a 15/20 per year
// repeat advisory.
func DefaultConfig() Config {
	return Config{
		DownloadStarts: DefaultDownloadStarts,
		DownloadWindow: DefaultDownloadWindow,
		RepeatWarnAt:   DefaultRepeatWarnAt,
		RepeatLimit:    DefaultRepeatLimit,
		RepeatPeriod:   DefaultRepeatPeriod,
	}
}

// State is the rate state of a single client.
type State struct {
	Requests  *Throttle
	Downloads *Window
	Repeats   *RepeatTracker

	clock Clock
}

// NewState builds the throttle, download window and repeat tracker for one client.
func NewState(cfg Config) *State {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}

	store := cfg.RepeatStore
	if store == nil {
		store = NewMemoryRepeatStore(clock)
	}

	return &State{
		Requests:  NewThrottle(cfg.MinInterval, cfg.Strict, clock, cfg.Logger),
		Downloads: NewWindow(cfg.DownloadStarts, cfg.DownloadWindow, cfg.Strict, clock, cfg.Logger),
		Repeats:   NewRepeatTracker(store, cfg.RepeatWarnAt, cfg.RepeatLimit, cfg.RepeatPeriod),
		clock:     clock,
	}
}

// Clock returns the clock shared by the limiters of this state.
func (s *State) Clock() Clock {
	return s.clock
}

// IntervalFromRPS converts a requests-per-second ceiling into a minimum interval.
// Non-positive values mean unlimited.
func IntervalFromRPS(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}
