package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when the response carries no freshness headers
	DefaultTTL = 5 * time.Minute
)

// CacheEntry represents a cached upstream response.
type CacheEntry struct {
	Data         []byte      `json:"data"`
	ETag         string      `json:"etag"`
	Expires      time.Time   `json:"expires"`
	LastModified time.Time   `json:"last_modified"`
	StatusCode   int         `json:"status_code"`
	Headers      http.Header `json:"headers"`
	CachedAt     time.Time   `json:"cached_at"`
}

// IsExpired reports whether the entry is stale.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 once expired.
func (e *CacheEntry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age returns how long ago the entry was stored.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

// NewEntry builds a cache entry from an already-read response.
// Freshness comes from Cache-Control, then Expires, then defaultTTL
// (DefaultTTL when zero). A response marked no-store gets an expired entry,
// which Manager.Set refuses to store.
func NewEntry(statusCode int, header http.Header, body []byte, defaultTTL time.Duration) *CacheEntry {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	entry := &CacheEntry{
		Data:       body,
		ETag:       header.Get("ETag"),
		StatusCode: statusCode,
		Headers:    header.Clone(),
		CachedAt:   time.Now(),
	}

	entry.Expires = parseExpires(header, entry.CachedAt, defaultTTL)

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// parseExpires derives the expiration time from the response headers.
func parseExpires(headers http.Header, now time.Time, defaultTTL time.Duration) time.Time {
	if maxAge, noStore, ok := parseCacheControl(headers.Get("Cache-Control")); ok {
		if noStore {
			return now
		}
		return now.Add(maxAge)
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(defaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(defaultTTL)
	}

	if expires.Before(now) {
		return now
	}

	return expires
}

// parseCacheControl extracts max-age and no-store. ok is false when the header
// says nothing about freshness.
func parseCacheControl(value string) (maxAge time.Duration, noStore bool, ok bool) {
	for _, directive := range strings.Split(value, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store":
			return 0, true, true
		case strings.HasPrefix(directive, "max-age="):
			seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || seconds < 0 {
				continue
			}
			maxAge, ok = time.Duration(seconds)*time.Second, true
		}
	}
	return maxAge, false, ok
}

// ShouldMakeConditionalRequest determines if we should add conditional
// request headers (If-None-Match or If-Modified-Since) based on the cache entry.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since headers
// to the request if the cache entry supports conditional requests.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	// ETag wins over Last-Modified
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}

// RefreshedExpires returns the new expiry carried by a 304 response, if any.
func RefreshedExpires(headers http.Header, defaultTTL time.Duration) (time.Time, bool) {
	if headers.Get("Cache-Control") == "" && headers.Get("Expires") == "" {
		return time.Time{}, false
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return parseExpires(headers, time.Now(), defaultTTL), true
}
