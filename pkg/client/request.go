package client

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/biofetch/pkg/pagination"
)

// Format is the expected encoding of a response body.
type Format int

const (
	// FormatJSON decodes into map[string]any / []any with json.Number values.
	FormatJSON Format = iota

	// FormatCSV decodes into [][]string records.
	FormatCSV

	// FormatText keeps the body as a string.
	FormatText

	// FormatBinary keeps the body as raw bytes.
	FormatBinary
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatText:
		return "text"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "text", "txt", "xml":
		return FormatText, nil
	case "binary", "bin", "raw":
		return FormatBinary, nil
	default:
		return FormatJSON, fmt.Errorf("unknown format %q", name)
	}
}

// Request describes one HTTP request. Values are treated as immutable: the
// With* helpers return modified copies and FetchAll derives a fresh Request
// for every page.
type Request struct {
	Method string
	URL    string
	Params url.Values
	Header http.Header

	// Body is JSON-encoded unless it is []byte or string, which are sent
	// as-is with ContentType.
	Body        any
	ContentType string

	Format Format
	Shape  pagination.Shape

	// NotFoundIsEmpty turns a 404 into an empty terminal page, for search
	// endpoints that report "no matches" that way.
	NotFoundIsEmpty bool
}

// Get returns a GET request.
func Get(rawURL string, params url.Values) Request {
	return Request{Method: http.MethodGet, URL: rawURL, Params: params}
}

// Post returns a POST request with a body.
func Post(rawURL string, body any) Request {
	return Request{Method: http.MethodPost, URL: rawURL, Body: body}
}

// WithURL returns a copy with the URL replaced.
func (r Request) WithURL(rawURL string) Request {
	out := r.clone()
	out.URL = rawURL
	return out
}

// WithParams returns a copy with the query parameters replaced.
func (r Request) WithParams(params url.Values) Request {
	out := r.clone()
	out.Params = cloneValues(params)
	return out
}

// WithShape returns a copy with the pagination shape replaced.
func (r Request) WithShape(shape pagination.Shape) Request {
	out := r.clone()
	out.Shape = shape
	return out
}

// WithHeader returns a copy with one header set.
func (r Request) WithHeader(key, value string) Request {
	out := r.clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Header.Set(key, value)
	return out
}

func (r Request) clone() Request {
	out := r
	out.Params = cloneValues(r.Params)
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}

// ParamsFrom converts a loosely typed mapping into query parameters.
// Lists become repeated parameters; nil values are skipped.
func ParamsFrom(m map[string]any) (url.Values, error) {
	params := make(url.Values, len(m))

	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := m[key].(type) {
		case nil:
		case []string:
			params[key] = append([]string(nil), v...)
		case []any:
			for _, item := range v {
				s, err := paramString(item)
				if err != nil {
					return nil, fmt.Errorf("%w: param %q: %v", ErrInvalidRequest, key, err)
				}
				params.Add(key, s)
			}
		default:
			s, err := paramString(v)
			if err != nil {
				return nil, fmt.Errorf("%w: param %q: %v", ErrInvalidRequest, key, err)
			}
			params.Set(key, s)
		}
	}

	return params, nil
}

func paramString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case bool:
		return strconv.FormatBool(x), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
