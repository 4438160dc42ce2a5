// Package client provides the resilient fetcher shared by the API wrappers:
// request throttling, retry on 429 (or any configured error class),
// pagination following, optional Redis response caching and throttled,
// advisory-tracked bulk downloads.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/biofetch/pkg/cache"
	"github.com/Sternrassler/biofetch/pkg/pagination"
	"github.com/Sternrassler/biofetch/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Client is the resilient fetcher. It owns its rate state; independent
// clients never share limiter state.
type Client struct {
	httpClient *http.Client
	config     Config
	base       *url.URL
	state      *ratelimit.State
	cache      *cache.Manager
	clock      ratelimit.Clock
	logger     zerolog.Logger

	mu sync.Mutex
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "biofetch-client").Logger()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ratelimit.SystemClock()
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		base, _ = url.Parse(cfg.BaseURL)
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	state := ratelimit.NewState(ratelimit.Config{
		MinInterval:    cfg.minInterval(),
		Strict:         cfg.Strict,
		DownloadStarts: cfg.Downloads.MaxStarts,
		DownloadWindow: cfg.Downloads.Window,
		RepeatWarnAt:   cfg.Downloads.RepeatWarnAt,
		RepeatLimit:    cfg.Downloads.RepeatLimit,
		RepeatPeriod:   cfg.Downloads.RepeatPeriod,
		RepeatStore:    cfg.Downloads.RepeatStore,
		Clock:          clock,
		Logger:         logger,
	})

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		base:       base,
		state:      state,
		cache:      cacheManager,
		clock:      clock,
		logger:     logger,
	}, nil
}

// FetchPage issues one request and decodes the response. It waits on the
// request throttle, retries according to Config.Retry and annotates the page
// with its items and continuation marker.
func (c *Client) FetchPage(ctx context.Context, req Request) (*Page, error) {
	if c.config.Serialize {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	return c.fetchPage(ctx, req)
}

func (c *Client) fetchPage(ctx context.Context, req Request) (*Page, error) {
	if err := req.Shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	method, err := requestMethod(req)
	if err != nil {
		return nil, err
	}
	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	// Step 1: Cache lookup
	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	useCache := c.cache != nil && method == http.MethodGet
	if useCache {
		cacheKey = cache.NewKey(method, target, req.Format.String())
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", redact(target)).Msg("Cache get error")
		}
	}

	// Step 2: Dispatch with throttle and retry
	ex, err := c.dispatch(ctx, req, method, target, cachedEntry, nil)
	if err != nil {
		return nil, err
	}

	page := &Page{
		StatusCode: ex.status,
		Header:     ex.header,
		URL:        target.String(),
		Raw:        ex.body,
		Attempts:   ex.attempts,
		request:    req,
		params:     target.Query(),
	}

	// Step 3: Resolve special statuses and update the cache
	switch {
	case ex.status == http.StatusNotModified && cachedEntry != nil:
		cache.NotModifiedResponses.Inc()
		page.StatusCode = cachedEntry.StatusCode
		page.Header = cachedEntry.Headers
		page.Raw = cachedEntry.Data
		page.Cached = true
		c.logger.Debug().Str("url", redact(target)).Msg("304 Not Modified - using cache")

		if expires, ok := cache.RefreshedExpires(ex.header, c.config.CacheTTL); ok {
			if err := c.cache.UpdateTTL(ctx, cacheKey, expires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}

	case ex.status == http.StatusNotFound && req.NotFoundIsEmpty:
		page.Empty = true
		page.Items = []any{}
		page.Marker = pagination.Marker{Style: req.Shape.Style, Terminal: true}
		pagesFetchedTotal.WithLabelValues(req.Shape.Style.String()).Inc()
		c.logger.Debug().Str("url", redact(target)).Msg("404 treated as empty result")
		return page, nil

	case useCache && ex.status == http.StatusOK:
		entry := cache.NewEntry(ex.status, ex.header, ex.body, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	// Step 4: Decode and extract the continuation marker
	body, err := decodeBody(req.Format, redact(target), page.Raw)
	if err != nil {
		return nil, err
	}
	page.Body = body

	items, marker, err := req.Shape.Extract(body, page.params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redact(target), err)
	}
	if items == nil {
		items = []any{}
	}
	page.Items = items
	page.Marker = marker

	pagesFetchedTotal.WithLabelValues(req.Shape.Style.String()).Inc()
	return page, nil
}

// Next derives the request for the page following p. ok is false when p is
// the last page.
func (p *Page) Next() (next Request, ok bool, err error) {
	req := p.request
	step, err := req.Shape.Next(p.URL, p.params, p.Marker)
	if err != nil {
		return Request{}, false, err
	}
	if step.Done {
		return Request{}, false, nil
	}

	// A cursor URL is fetched with a plain GET.
	if step.URL != "" {
		next = req.WithURL(step.URL).WithParams(nil)
		next.Method = http.MethodGet
		next.Body = nil
		next.ContentType = ""
		return next, true, nil
	}

	u, err := url.Parse(p.URL)
	if err != nil {
		return Request{}, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	u.RawQuery = ""
	return req.WithURL(u.String()).WithParams(step.Params), true, nil
}

// PageOption tunes FetchAll.
type PageOption func(*pageOptions)

type pageOptions struct {
	maxPages int
	itemCap  int
	delay    time.Duration
}

// MaxPages stops after n pages (n <= 0 means no limit).
func MaxPages(n int) PageOption {
	return func(o *pageOptions) { o.maxPages = n }
}

// ItemCap stops once n items are accumulated; the last page is truncated so
// exactly n items are returned (n <= 0 means no limit).
func ItemCap(n int) PageOption {
	return func(o *pageOptions) { o.itemCap = n }
}

// PageDelay overrides the politeness delay between pages.
func PageDelay(d time.Duration) PageOption {
	return func(o *pageOptions) { o.delay = d }
}

// FetchAll follows the continuation markers of req until the last page, the
// page limit or the item cap, whichever comes first. Pages are fetched
// strictly in order. On error the pages fetched so far are returned together
// with the error.
func (c *Client) FetchAll(ctx context.Context, req Request, opts ...PageOption) (*PagedResult, error) {
	o := pageOptions{delay: c.config.PageDelay}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	style := req.Shape.Style.String()
	result := &PagedResult{Items: []any{}}
	current := req

	for {
		if len(result.Pages) > 0 && o.delay > 0 {
			if err := c.clock.Sleep(ctx, o.delay); err != nil {
				return result, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
		}

		page, err := c.FetchPage(ctx, current)
		if err != nil {
			return result, err
		}
		result.Pages = append(result.Pages, page)

		items := page.Items
		if o.itemCap > 0 && len(result.Items)+len(items) > o.itemCap {
			items = items[:o.itemCap-len(result.Items)]
			result.Truncated = true
		}
		result.Items = append(result.Items, items...)

		if o.maxPages > 0 && len(result.Pages) >= o.maxPages {
			break
		}
		if o.itemCap > 0 && len(result.Items) >= o.itemCap {
			break
		}

		next, ok, err := page.Next()
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}
		current = next
	}

	itemsFetchedTotal.WithLabelValues(style).Add(float64(len(result.Items)))
	c.logger.Debug().
		Str("style", style).
		Int("pages", len(result.Pages)).
		Int("items", len(result.Items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}

// exchange is the outcome of one dispatched request after retries.
type exchange struct {
	status   int
	header   http.Header
	body     []byte
	written  int64
	attempts int
}

// dispatch sends req, retrying per Config.Retry. When sink is non-nil a 2xx
// body is streamed into it instead of being buffered.
func (c *Client) dispatch(ctx context.Context, req Request, method string, target *url.URL, cachedEntry *cache.CacheEntry, sink io.Writer) (*exchange, error) {
	host := target.Host
	display := redact(target)
	ex := &exchange{}

	attempts, err := retryWithBackoff(ctx, c.clock, c.config.Retry, c.logger, func(attempt int) (ErrorClass, error) {
		if _, err := c.state.Requests.Wait(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				requestsTotal.WithLabelValues(host, "rate_limited").Inc()
				return "", fmt.Errorf("%s %s: %w", method, display, ErrRateLimitExceeded)
			}
			return "", fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		httpReq, err := c.newHTTPRequest(ctx, req, method, target, cachedEntry)
		if err != nil {
			return "", err
		}

		c.logger.Debug().
			Str("method", method).
			Str("url", display).
			Int("attempt", attempt).
			Msg("Dispatching request")

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
			}
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(host, "network_error").Inc()
			return ErrorClassNetwork, fmt.Errorf("%s %s: %w", method, display, err)
		}
		defer resp.Body.Close()

		ex.status = resp.StatusCode
		ex.header = resp.Header
		ex.body = nil
		requestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

		success := resp.StatusCode >= 200 && resp.StatusCode < 300
		if success && sink != nil {
			n, err := io.Copy(sink, resp.Body)
			ex.written = n
			if err != nil {
				return "", fmt.Errorf("%s %s: stream body after %d bytes: %w", method, display, n, err)
			}
			return "", nil
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
			}
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return ErrorClassNetwork, fmt.Errorf("%s %s: read body: %w", method, display, err)
		}
		ex.body = body

		if success ||
			(resp.StatusCode == http.StatusNotModified && cachedEntry != nil) ||
			(resp.StatusCode == http.StatusNotFound && req.NotFoundIsEmpty) {
			return "", nil
		}

		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		errorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Debug().
			Str("url", display).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		return class, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Method:     method,
			URL:        display,
			Body:       body,
			Class:      class,
			Attempts:   attempt,
		}
	})

	ex.attempts = attempts
	return ex, err
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, method string, target *url.URL, cachedEntry *cache.CacheEntry) (*http.Request, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	for key, values := range c.config.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", acceptFor(req.Format))
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(httpReq, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
	}

	return httpReq, nil
}

// resolve builds the absolute request URL with Params merged into its query.
// Params override query values of the same name already in the URL.
func (c *Client) resolve(req Request) (*url.URL, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidRequest)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if !u.IsAbs() {
		if c.base == nil {
			return nil, fmt.Errorf("%w: %q is relative and no base URL is configured", ErrInvalidRequest, req.URL)
		}
		ref, err := url.Parse(strings.TrimPrefix(req.URL, "/"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		u = c.base.ResolveReference(ref)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, u.Scheme)
	}

	if len(req.Params) > 0 {
		query := u.Query()
		for key, values := range req.Params {
			query[key] = append([]string(nil), values...)
		}
		u.RawQuery = query.Encode()
	}

	return u, nil
}

func requestMethod(req Request) (string, error) {
	method := strings.ToUpper(req.Method)
	switch method {
	case "":
		return http.MethodGet, nil
	case http.MethodGet, http.MethodPost, http.MethodHead:
		return method, nil
	default:
		return "", fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, req.Method)
	}
}

// redact renders u with credential query parameters masked.
func redact(u *url.URL) string {
	query := u.Query()
	masked := false
	for _, name := range cache.CredentialParams {
		if query.Has(name) {
			query.Set(name, "xxxxx")
			masked = true
		}
	}
	if !masked {
		return u.Redacted()
	}
	out := *u
	out.RawQuery = query.Encode()
	return out.Redacted()
}

// State returns the rate state owned by this client.
func (c *Client) State() *ratelimit.State {
	return c.state
}

// Cache returns the response cache, or nil when caching is disabled.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
