package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/biofetch/pkg/apis"
	"github.com/Sternrassler/biofetch/pkg/client"
	"github.com/Sternrassler/biofetch/pkg/logging"
	"github.com/Sternrassler/biofetch/pkg/ratelimit"
)

// repeatPrefix namespaces the download counters kept in Redis.
const repeatPrefix = "biofetch:repeat"

// session is a configured client plus the preset it was built from.
type session struct {
	client *client.Client
	preset *apis.Preset
	apiKey string
	redis  *redis.Client
	logger zerolog.Logger
}

func (a *app) openSession(ctx context.Context) (*session, error) {
	logger := logging.NewLogger("cli")
	cfg := client.DefaultConfig(a.v.GetString("user-agent"))
	cfg.Logger = &logger

	s := &session{logger: logger}

	if name := a.v.GetString("api"); name != "" {
		preset, err := apis.Lookup(name)
		if err != nil {
			return nil, err
		}
		s.preset = &preset
		s.apiKey = a.v.GetString("api-key")
		if s.apiKey == "" {
			s.apiKey = preset.KeyFromEnv()
		}
		preset.Apply(&cfg, s.apiKey)
	}

	if a.v.IsSet("base-url") {
		cfg.BaseURL = a.v.GetString("base-url")
	}
	if a.v.IsSet("rps") {
		cfg.RequestsPerSecond = a.v.GetFloat64("rps")
		cfg.MinInterval = 0
	}
	if a.v.IsSet("min-interval") {
		cfg.MinInterval = a.v.GetDuration("min-interval")
	}
	if a.v.IsSet("timeout") {
		cfg.Timeout = a.v.GetDuration("timeout")
	}
	if retries := a.v.GetInt("retries"); retries >= 0 {
		cfg.Retry.MaxRetries = retries
	}
	cfg.Strict = a.v.GetBool("strict")
	cfg.CacheTTL = a.v.GetDuration("cache-ttl")

	cfg.OnAdvisory = func(adv ratelimit.Advisory) {
		fmt.Fprintf(a.errOut, "%s\n", adv.Message)
	}

	if addr := a.v.GetString("redis-addr"); addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: addr})
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
		}
		s.redis = rc
		cfg.Redis = rc
		cfg.Downloads.RepeatStore = ratelimit.NewRedisRepeatStore(rc, repeatPrefix)
		logger.Debug().Str("addr", addr).Msg("Connected to Redis")
	}

	c, err := client.New(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client = c
	return s, nil
}

// request builds a GET for path, carrying the preset's shape, format and
// 404 policy when a preset is active.
func (s *session) request(path string, params url.Values) client.Request {
	if s.preset != nil {
		return s.preset.Request(path, params, s.apiKey)
	}
	return client.Get(path, nil).WithParams(params)
}

func (s *session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// parseParams turns repeated key=value flags into query parameters.
func parseParams(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		params.Add(key, value)
	}
	return params, nil
}

func apiNames() []string {
	return apis.Names()
}
