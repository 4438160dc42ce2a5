package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewEntry(t *testing.T) {
	lastModified := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	header := http.Header{
		"Last-Modified": []string{lastModified.Format(http.TimeFormat)},
		"Etag":          []string{`"abc123"`},
		"Content-Type":  []string{"application/json"},
	}

	entry := NewEntry(200, header, []byte(`{"results":[]}`), 0)

	if entry.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if !entry.LastModified.Equal(lastModified) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastModified)
	}
	if string(entry.Data) != `{"results":[]}` {
		t.Errorf("Data = %q", entry.Data)
	}

	header.Set("Content-Type", "text/plain")
	if entry.Headers.Get("Content-Type") != "application/json" {
		t.Error("entry headers must be a copy")
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		headers    http.Header
		defaultTTL time.Duration
		want       time.Duration
	}{
		{
			name:       "no headers uses default",
			headers:    http.Header{},
			defaultTTL: DefaultTTL,
			want:       DefaultTTL,
		},
		{
			name:       "custom default",
			headers:    http.Header{},
			defaultTTL: time.Minute,
			want:       time.Minute,
		},
		{
			name:       "max-age wins over expires",
			headers:    http.Header{"Cache-Control": {"public, max-age=60"}, "Expires": {now.Add(time.Hour).Format(http.TimeFormat)}},
			defaultTTL: DefaultTTL,
			want:       time.Minute,
		},
		{
			name:       "no-store",
			headers:    http.Header{"Cache-Control": {"no-store"}},
			defaultTTL: DefaultTTL,
			want:       0,
		},
		{
			name:       "cache-control without freshness falls through",
			headers:    http.Header{"Cache-Control": {"public"}},
			defaultTTL: time.Minute,
			want:       time.Minute,
		},
		{
			name:       "past expires",
			headers:    http.Header{"Expires": {now.Add(-time.Hour).Format(http.TimeFormat)}},
			defaultTTL: DefaultTTL,
			want:       0,
		},
		{
			name:       "invalid expires uses default",
			headers:    http.Header{"Expires": {"soon"}},
			defaultTTL: DefaultTTL,
			want:       DefaultTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExpires(tt.headers, now, tt.defaultTTL).Sub(now)
			if diff := got - tt.want; diff < -time.Second || diff > time.Second {
				t.Errorf("parseExpires() = now+%v, want now+%v", got, tt.want)
			}
		})
	}
}

func TestParseExpires_HTTPDate(t *testing.T) {
	now := time.Now()
	expires := now.Add(30 * time.Minute)

	got := parseExpires(http.Header{"Expires": {expires.Format(http.TimeFormat)}}, now, DefaultTTL)
	if diff := got.Sub(expires); diff < -time.Second || diff > time.Second {
		t.Errorf("parseExpires() = %v, want %v", got, expires)
	}
}

func TestCacheEntry_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		expired bool
	}{
		{"expired entry", time.Now().Add(-time.Hour), true},
		{"valid entry", time.Now().Add(time.Hour), false},
		{"just expired", time.Now().Add(-time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.expired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expired)
			}
			if tt.expired && entry.TTL() != 0 {
				t.Errorf("TTL() = %v, want 0 for expired entry", entry.TTL())
			}
			if !tt.expired && entry.TTL() <= 0 {
				t.Errorf("TTL() = %v, want positive", entry.TTL())
			}
		})
	}
}

func TestShouldMakeConditionalRequest(t *testing.T) {
	tests := []struct {
		name  string
		entry *CacheEntry
		want  bool
	}{
		{"nil entry", nil, false},
		{"etag", &CacheEntry{ETag: `"x"`}, true},
		{"last-modified", &CacheEntry{LastModified: time.Now()}, true},
		{"neither", &CacheEntry{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.want {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	lastModified := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		entry      *CacheEntry
		wantINM    string
		wantIMSSet bool
	}{
		{"etag preferred", &CacheEntry{ETag: `"v1"`, LastModified: lastModified}, `"v1"`, false},
		{"last-modified only", &CacheEntry{LastModified: lastModified}, "", true},
		{"nothing", &CacheEntry{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "https://api.example.org", nil)
			AddConditionalHeaders(req, tt.entry)

			if got := req.Header.Get("If-None-Match"); got != tt.wantINM {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantINM)
			}
			if got := req.Header.Get("If-Modified-Since") != ""; got != tt.wantIMSSet {
				t.Errorf("If-Modified-Since set = %v, want %v", got, tt.wantIMSSet)
			}
		})
	}

	AddConditionalHeaders(nil, &CacheEntry{ETag: "x"})
}

func TestRefreshedExpires(t *testing.T) {
	if _, ok := RefreshedExpires(http.Header{}, 0); ok {
		t.Error("RefreshedExpires() ok for headers without freshness")
	}

	expires, ok := RefreshedExpires(http.Header{"Cache-Control": {"max-age=120"}}, 0)
	if !ok {
		t.Fatal("RefreshedExpires() not ok")
	}
	if ttl := time.Until(expires); ttl < 110*time.Second || ttl > 121*time.Second {
		t.Errorf("refreshed TTL = %v, want ~120s", ttl)
	}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.maxEntryBytes != DefaultMaxEntryBytes {
		t.Errorf("maxEntryBytes = %d, want %d", manager.maxEntryBytes, DefaultMaxEntryBytes)
	}

	capped := NewManager(client, WithMaxEntryBytes(10))
	if capped.maxEntryBytes != 10 {
		t.Errorf("maxEntryBytes = %d, want 10", capped.maxEntryBytes)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}
