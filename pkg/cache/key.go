package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "biofetch"

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Method is the HTTP method (only GET responses are cached by the client).
	Method string

	// URL is the request URL without its query string
	// (e.g., "https://api.fda.gov/drug/event.json").
	URL string

	// QueryParams are the query parameters of the request.
	QueryParams url.Values

	// Variant separates representations of the same resource
	// (e.g., the requested format).
	Variant string
}

// CredentialParams are query parameters that carry credentials. Their values
// never appear in a key; NewKey replaces them with a fingerprint.
var CredentialParams = []string{"api_key", "apikey", "api-key", "key", "token", "access_token"}

// NewKey builds a key from a full request URL, splitting off its query.
func NewKey(method string, u *url.URL, variant string) CacheKey {
	base := *u
	base.RawQuery = ""
	base.Fragment = ""

	query := u.Query()
	for _, name := range CredentialParams {
		values, ok := query[name]
		if !ok {
			continue
		}
		masked := make([]string, len(values))
		for i, v := range values {
			masked[i] = fingerprint(v)
		}
		query[name] = masked
	}

	return CacheKey{
		Method:      strings.ToUpper(method),
		URL:         base.String(),
		QueryParams: query,
		Variant:     variant,
	}
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return "sha256-" + hex.EncodeToString(sum[:6])
}

// String generates a deterministic cache key string.
// Format: biofetch:METHOD:url:query1=a,b:query2=c[:variant]
//
// Example:
//
//	biofetch:GET:https://api.fda.gov/drug/event.json:limit=100:skip=0
func (k CacheKey) String() string {
	method := k.Method
	if method == "" {
		method = "GET"
	}
	parts := []string{KeyPrefix, method}

	if u := strings.TrimRight(k.URL, "/"); u != "" {
		parts = append(parts, u)
	}

	// Query params sorted for determinism; repeated values keep their order.
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, key+"="+strings.Join(k.QueryParams[key], ","))
		}
	}

	if k.Variant != "" {
		parts = append(parts, k.Variant)
	}

	return strings.Join(parts, ":")
}
