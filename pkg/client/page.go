package client

import (
	"net/http"
	"net/url"

	"github.com/Sternrassler/biofetch/pkg/pagination"
)

// Page is one fetched response.
type Page struct {
	StatusCode int
	Header     http.Header

	// URL is the fully resolved request URL, query included.
	URL string

	// Body is the decoded body: map[string]any or []any for JSON,
	// [][]string for CSV, string for text, []byte for binary.
	Body any
	Raw  []byte

	Items  []any
	Marker pagination.Marker

	// Empty is set when a 404 was converted into an empty page.
	Empty bool

	// Cached is set when the body was served from the response cache.
	Cached bool

	Attempts int

	request Request
	params  url.Values
}

// PagedResult is the concatenation of the pages fetched by FetchAll.
// Items keep server order and are never de-duplicated.
type PagedResult struct {
	Pages []*Page
	Items []any

	// Truncated is set when ItemCap cut the last page short.
	Truncated bool
}

// Len returns the number of accumulated items.
func (r *PagedResult) Len() int {
	return len(r.Items)
}
