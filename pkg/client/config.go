package client

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/biofetch/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Defaults used by DefaultConfig.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultPageDelay = 250 * time.Millisecond
	DefaultUserAgent = "biofetch/1.0"
)

// DownloadConfig tunes the download window and the repeat-download advisory.
type DownloadConfig struct {
	// MaxStarts download starts are admitted per Window (0 disables the window).
	MaxStarts int
	Window    time.Duration

	// An advisory is emitted once a resource reaches RepeatWarnAt downloads
	// and for every download at or above RepeatLimit within RepeatPeriod.
	RepeatWarnAt int
	RepeatLimit  int
	RepeatPeriod time.Duration

	// RepeatStore counts downloads per resource. Defaults to an in-memory
	// store; ratelimit.RedisRepeatStore shares counts across processes.
	RepeatStore ratelimit.RepeatStore
}

// DefaultDownloadConfig returns 5 starts per 10 seconds and a 15/20 per year advisory.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		MaxStarts:    ratelimit.DefaultDownloadStarts,
		Window:       ratelimit.DefaultDownloadWindow,
		RepeatWarnAt: ratelimit.DefaultRepeatWarnAt,
		RepeatLimit:  ratelimit.DefaultRepeatLimit,
		RepeatPeriod: ratelimit.DefaultRepeatPeriod,
	}
}

// Config holds the client configuration.
type Config struct {
	// BaseURL resolves relative request URLs (optional).
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Header is added to every request (API keys, Accept overrides).
	Header http.Header

	// Timeout bounds each individual HTTP call.
	Timeout time.Duration

	// HTTPClient replaces the default client (Timeout is then ignored).
	HTTPClient *http.Client

	// Request throttle. MinInterval takes precedence over RequestsPerSecond;
	// both zero means unlimited.
	RequestsPerSecond float64
	MinInterval       time.Duration

	// Strict returns ErrRateLimitExceeded instead of waiting on a limiter.
	Strict bool

	Retry     RetryConfig
	Downloads DownloadConfig

	// PageDelay is the politeness delay FetchAll sleeps before every page
	// after the first.
	PageDelay time.Duration

	// Redis enables the response cache for GET requests (optional).
	Redis    *redis.Client
	CacheTTL time.Duration

	// Serialize dispatches through a per-client mutex so one Client can be
	// shared between goroutines.
	Serialize bool

	// Logger receives debug events. Nil keeps the client silent.
	Logger *zerolog.Logger

	// Clock drives every sleep. Nil uses the wall clock.
	Clock ratelimit.Clock

	// OnAdvisory is called for repeat-download advisories (optional).
	OnAdvisory func(ratelimit.Advisory)
}

// DefaultConfig returns a configuration with the observed upstream conventions.
func DefaultConfig(userAgent string) Config {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return Config{
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
		Downloads: DefaultDownloadConfig(),
		PageDelay: DefaultPageDelay,
		Serialize: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("base_url must be an absolute URL (got %q)", c.BaseURL)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %v)", c.Timeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0 (got %v)", c.RequestsPerSecond)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min_interval must be >= 0 (got %v)", c.MinInterval)
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page_delay must be >= 0 (got %v)", c.PageDelay)
	}
	if c.Downloads.MaxStarts < 0 || c.Downloads.Window < 0 {
		return fmt.Errorf("download window must be >= 0")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// minInterval resolves the request throttle interval.
func (c Config) minInterval() time.Duration {
	if c.MinInterval > 0 {
		return c.MinInterval
	}
	return ratelimit.IntervalFromRPS(c.RequestsPerSecond)
}
