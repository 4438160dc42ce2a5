package client

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{429, ErrorClassRateLimit},
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{200, ""},
		{304, ""},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		config   RetryConfig
		class    ErrorClass
		expected bool
	}{
		{"default retries 429", DefaultRetryConfig(), ErrorClassRateLimit, true},
		{"default does not retry 5xx", DefaultRetryConfig(), ErrorClassServer, false},
		{"default does not retry network", DefaultRetryConfig(), ErrorClassNetwork, false},
		{"client errors never in default", DefaultRetryConfig(), ErrorClassClient, false},
		{"empty class", RetryConfig{RetryOn: []ErrorClass{ErrorClassServer}}, "", false},
		{"opt-in server", RetryConfig{RetryOn: []ErrorClass{ErrorClassServer}}, ErrorClassServer, true},
		{"no retry", NoRetry(), ErrorClassRateLimit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.shouldRetry(tt.class); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}

func TestHTTPError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *HTTPError
		contains []string
	}{
		{
			name: "with body",
			err: &HTTPError{
				StatusCode: 404,
				Method:     "GET",
				URL:        "https://api.fda.gov/drug/event.json",
				Class:      ErrorClassClient,
				Body:       []byte(`{"error":"No matches found!"}`),
			},
			contains: []string{"GET https://api.fda.gov/drug/event.json", "client error (status 404)", "No matches found!"},
		},
		{
			name: "exhausted",
			err: &HTTPError{
				StatusCode: 429,
				Method:     "GET",
				URL:        "https://api.uspto.gov/api/v1/patent/applications/search",
				Class:      ErrorClassRateLimit,
				Err:        ErrRetryExhausted,
			},
			contains: []string{"rate_limit error (status 429)", "retry attempts exhausted"},
		},
		{
			name: "long body truncated",
			err: &HTTPError{
				StatusCode: 500,
				Method:     "POST",
				URL:        "https://example.org",
				Class:      ErrorClassServer,
				Body:       []byte(strings.Repeat("x", 500)),
			},
			contains: []string{"..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestHTTPError_Unwrap(t *testing.T) {
	err := &HTTPError{StatusCode: 429, Class: ErrorClassRateLimit, Err: ErrRetryExhausted}

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false, want true")
	}

	var target *HTTPError
	if !errors.As(error(err), &target) || target.StatusCode != 429 {
		t.Error("errors.As failed to extract HTTPError")
	}

	if (&HTTPError{}).Unwrap() != nil {
		t.Error("Unwrap() of error without cause should be nil")
	}
}

func TestDecodeError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := &DecodeError{Format: FormatJSON, URL: "https://example.org", Raw: []byte("{"), Err: cause}

	if !errors.Is(err, cause) {
		t.Error("DecodeError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "decode json response") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrRateLimitExceeded_IsLimiterError(t *testing.T) {
	if ErrRateLimitExceeded.Error() != "rate limit exceeded" {
		t.Errorf("ErrRateLimitExceeded = %q", ErrRateLimitExceeded)
	}
}
