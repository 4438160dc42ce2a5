package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformedMarker matches every MarkerError via errors.Is.
var ErrMalformedMarker = errors.New("malformed pagination marker")

// MarkerError reports a continuation marker that is present but cannot be
// turned into a next request.
type MarkerError struct {
	Style  Style
	Field  string
	Value  any
	Reason string
}

// Error implements error.
func (e *MarkerError) Error() string {
	return fmt.Sprintf("pagination: %s marker %q (%v): %s", e.Style, e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrMalformedMarker.
func (e *MarkerError) Unwrap() error {
	return ErrMalformedMarker
}

// Marker is the continuation state extracted from one page.
type Marker struct {
	Style    Style
	Terminal bool

	// URL is the next-page URL as found in the body (StyleCursorURL).
	URL string

	// Token is the next-page token (StyleToken).
	Token string

	// Offset is the offset of the page the marker was extracted from,
	// Received the number of items on it and Total the reported total
	// when HasTotal is set (StyleOffset).
	Offset   int
	Received int
	Total    int
	HasTotal bool
}

// String summarises the marker for display.
func (m Marker) String() string {
	if m.Terminal {
		return "end"
	}
	switch m.Style {
	case StyleCursorURL:
		return "next=" + m.URL
	case StyleToken:
		return "token=" + m.Token
	case StyleOffset:
		return fmt.Sprintf("offset %d/%d", m.Offset+m.Received, m.Total)
	default:
		return "end"
	}
}

// Step describes the request that follows a page.
type Step struct {
	// Done is set when there is no further page.
	Done bool

	// URL replaces the request URL when non-empty. Params replace the
	// request parameters; nil means no parameters.
	URL    string
	Params url.Values
}

// Extract returns the items of a decoded body and its continuation marker.
// params are the query parameters the page was requested with; the offset
// style reads the current offset from them.
//
// Bodies that are bare lists are terminal. CSV bodies ([][]string) yield one
// item per record after the header row, keyed by header name.
func (s Shape) Extract(body any, params url.Values) ([]any, Marker, error) {
	s = s.WithDefaults()
	terminal := Marker{Style: s.Style, Terminal: true}

	switch b := body.(type) {
	case []any:
		return b, terminal, nil
	case [][]string:
		return csvItems(b), terminal, nil
	case map[string]any:
		items, err := s.items(b)
		if err != nil {
			return nil, terminal, err
		}
		marker, err := s.marker(b, params, len(items))
		if err != nil {
			return items, terminal, err
		}
		return items, marker, nil
	default:
		return nil, terminal, nil
	}
}

func (s Shape) items(body map[string]any) ([]any, error) {
	v, ok := lookup(body, s.ItemsField)
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T", ErrItemsNotList, s.ItemsField, v)
	}
	return list, nil
}

func (s Shape) marker(body map[string]any, params url.Values, received int) (Marker, error) {
	m := Marker{Style: s.Style, Received: received}

	switch s.Style {
	case StyleCursorURL:
		next, ok, err := stringField(body, s.NextField, s.Style)
		if err != nil {
			return m, err
		}
		if !ok {
			m.Terminal = true
			return m, nil
		}
		if _, err := url.Parse(next); err != nil {
			return m, &MarkerError{Style: s.Style, Field: s.NextField, Value: next, Reason: err.Error()}
		}
		m.URL = next

	case StyleToken:
		token, ok, err := stringField(body, s.TokenField, s.Style)
		if err != nil {
			return m, err
		}
		if !ok {
			m.Terminal = true
			return m, nil
		}
		m.Token = token

	case StyleOffset:
		if raw := params.Get(s.OffsetParam); raw != "" {
			offset, err := toInt(raw)
			if err != nil || offset < 0 {
				return m, &MarkerError{Style: s.Style, Field: s.OffsetParam, Value: raw, Reason: "offset parameter is not a non-negative integer"}
			}
			m.Offset = offset
		}

		v, ok := lookup(body, s.TotalField)
		if ok && v != nil {
			total, err := toInt(v)
			if err != nil {
				return m, &MarkerError{Style: s.Style, Field: s.TotalField, Value: v, Reason: "total is not numeric"}
			}
			m.Total = total
			m.HasTotal = true
		}

		m.Terminal = received == 0 || !m.HasTotal || m.Offset+received >= m.Total

	default:
		m.Terminal = true
	}

	return m, nil
}

// Next derives the request following a page. base is the URL the page was
// fetched from; relative cursor URLs are resolved against it.
func (s Shape) Next(base string, params url.Values, m Marker) (Step, error) {
	s = s.WithDefaults()
	if m.Terminal {
		return Step{Done: true}, nil
	}

	switch s.Style {
	case StyleCursorURL:
		next, err := url.Parse(m.URL)
		if err != nil {
			return Step{}, &MarkerError{Style: s.Style, Field: s.NextField, Value: m.URL, Reason: err.Error()}
		}
		if !next.IsAbs() {
			baseURL, err := url.Parse(base)
			if err != nil || !baseURL.IsAbs() {
				return Step{}, &MarkerError{Style: s.Style, Field: s.NextField, Value: m.URL, Reason: "relative next URL without an absolute base"}
			}
			next = baseURL.ResolveReference(next)
		}
		return Step{URL: next.String()}, nil

	case StyleToken:
		p := cloneValues(params)
		p.Set(s.TokenParam, m.Token)
		return Step{Params: p}, nil

	case StyleOffset:
		p := cloneValues(params)
		p.Set(s.OffsetParam, strconv.Itoa(m.Offset+m.Received))
		return Step{Params: p}, nil

	default:
		return Step{Done: true}, nil
	}
}

// stringField reads a string marker. Absent, null and blank values report
// ok=false; any other non-string value is a MarkerError.
func stringField(body map[string]any, field string, style Style) (string, bool, error) {
	v, ok := lookup(body, field)
	if !ok || v == nil {
		return "", false, nil
	}
	str, isString := v.(string)
	if !isString {
		return "", false, &MarkerError{Style: style, Field: field, Value: v, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return "", false, nil
	}
	return str, true, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}

func csvItems(records [][]string) []any {
	if len(records) < 2 {
		return []any{}
	}
	header := records[0]
	items := make([]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		items = append(items, row)
	}
	return items
}
