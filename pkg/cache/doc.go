// Package cache provides an optional Redis-backed response cache for the
// fetch client.
//
// Only successful GET responses are cached. Freshness is taken from the
// response (Cache-Control max-age, then Expires) with a configurable default.
// Entries carrying an ETag or Last-Modified allow the client to revalidate
// with a conditional request; a 304 Not Modified response is served from the
// cached body and extends the entry.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	manager := cache.NewManager(redisClient)
//
//	u, _ := url.Parse("https://api.fda.gov/drug/event.json?limit=100")
//	key := cache.NewKey(http.MethodGet, u, "json")
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch upstream, then:
//		manager.Set(ctx, key, cache.NewEntry(resp.StatusCode, resp.Header, body, 0))
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - biofetch_cache_hits_total{layer="redis"}
//   - biofetch_cache_misses_total
//   - biofetch_cache_size_bytes{layer="redis"}
//   - biofetch_conditional_requests_total
//   - biofetch_304_responses_total
//   - biofetch_cache_errors_total{operation}
package cache
