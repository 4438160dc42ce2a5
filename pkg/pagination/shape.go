package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// Style selects the continuation idiom of an operation.
type Style int

const (
	// StyleNone is a single-page operation.
	StyleNone Style = iota

	// StyleCursorURL follows an absolute (or relative) next-page URL.
	StyleCursorURL

	// StyleToken echoes a page token back as a query parameter.
	StyleToken

	// StyleOffset advances an offset parameter until a reported total is reached.
	StyleOffset
)

// String returns the style name.
func (s Style) String() string {
	switch s {
	case StyleNone:
		return "none"
	case StyleCursorURL:
		return "cursor"
	case StyleToken:
		return "token"
	case StyleOffset:
		return "offset"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// ParseStyle parses a style name as returned by Style.String.
func ParseStyle(name string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return StyleNone, nil
	case "cursor", "cursor-url", "next":
		return StyleCursorURL, nil
	case "token":
		return StyleToken, nil
	case "offset", "skip":
		return StyleOffset, nil
	default:
		return StyleNone, fmt.Errorf("unknown pagination style %q", name)
	}
}

// Field defaults applied when a Shape leaves them empty.
const (
	DefaultItemsField  = "results"
	DefaultNextField   = "next"
	DefaultTokenField  = "nextPageToken"
	DefaultTokenParam  = "pageToken"
	DefaultTotalField  = "total"
	DefaultOffsetParam = "skip"
)

// ErrItemsNotList is returned when the items field exists but is not a list.
var ErrItemsNotList = errors.New("items field is not a list")

// Shape declares where a response keeps its items and continuation marker.
// Field names may be dotted paths into nested objects ("meta.results.total").
type Shape struct {
	Style Style

	// ItemsField locates the item list inside a mapping body.
	ItemsField string

	// NextField holds the next-page URL (StyleCursorURL).
	NextField string

	// TokenField holds the page token and TokenParam is the query parameter
	// it is sent back in (StyleToken).
	TokenField string
	TokenParam string

	// TotalField holds the total item count and OffsetParam is the query
	// parameter advanced per page (StyleOffset).
	TotalField  string
	OffsetParam string
}

// CursorURL returns a cursor-URL shape.
func CursorURL(itemsField, nextField string) Shape {
	return Shape{Style: StyleCursorURL, ItemsField: itemsField, NextField: nextField}
}

// Token returns a token shape.
func Token(itemsField, tokenField, tokenParam string) Shape {
	return Shape{Style: StyleToken, ItemsField: itemsField, TokenField: tokenField, TokenParam: tokenParam}
}

// Offset returns an offset/total shape.
func Offset(itemsField, totalField, offsetParam string) Shape {
	return Shape{Style: StyleOffset, ItemsField: itemsField, TotalField: totalField, OffsetParam: offsetParam}
}

// Single returns a shape for single-page operations.
func Single(itemsField string) Shape {
	return Shape{Style: StyleNone, ItemsField: itemsField}
}

// WithDefaults returns a copy with empty field names replaced by the defaults.
func (s Shape) WithDefaults() Shape {
	if s.ItemsField == "" {
		s.ItemsField = DefaultItemsField
	}
	if s.NextField == "" {
		s.NextField = DefaultNextField
	}
	if s.TokenField == "" {
		s.TokenField = DefaultTokenField
	}
	if s.TokenParam == "" {
		s.TokenParam = DefaultTokenParam
	}
	if s.TotalField == "" {
		s.TotalField = DefaultTotalField
	}
	if s.OffsetParam == "" {
		s.OffsetParam = DefaultOffsetParam
	}
	return s
}

// Validate reports whether the style is known.
func (s Shape) Validate() error {
	if s.Style < StyleNone || s.Style > StyleOffset {
		return fmt.Errorf("invalid pagination style %d", int(s.Style))
	}
	return nil
}
