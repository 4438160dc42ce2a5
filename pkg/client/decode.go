package client

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// decodeBody parses raw according to format. An empty body decodes to nil.
func decodeBody(format Format, rawURL string, raw []byte) (any, error) {
	switch format {
	case FormatJSON:
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var body any
		if err := dec.Decode(&body); err != nil {
			return nil, &DecodeError{Format: format, URL: rawURL, Raw: raw, Err: err}
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, &DecodeError{Format: format, URL: rawURL, Raw: raw, Err: fmt.Errorf("unexpected data after JSON value")}
		}
		return body, nil

	case FormatCSV:
		if len(bytes.TrimSpace(raw)) == 0 {
			return [][]string{}, nil
		}
		reader := csv.NewReader(bytes.NewReader(raw))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		records, err := reader.ReadAll()
		if err != nil {
			return nil, &DecodeError{Format: format, URL: rawURL, Raw: raw, Err: err}
		}
		return records, nil

	case FormatText:
		return string(raw), nil

	case FormatBinary:
		return raw, nil

	default:
		return nil, &DecodeError{Format: format, URL: rawURL, Raw: raw, Err: fmt.Errorf("unsupported format")}
	}
}

// encodeBody serializes a request body.
func encodeBody(req Request) (io.Reader, string, error) {
	switch b := req.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), req.ContentType, nil
	case string:
		return bytes.NewReader([]byte(b)), req.ContentType, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
		}
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		return bytes.NewReader(data), contentType, nil
	}
}

func acceptFor(format Format) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "*/*"
	}
}
