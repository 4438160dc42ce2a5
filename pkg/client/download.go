package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/biofetch/pkg/ratelimit"
)

// DownloadResult describes a completed download.
type DownloadResult struct {
	URL        string
	StatusCode int
	Header     http.Header
	Bytes      int64
	Attempts   int

	// Waited is the time spent waiting for the download window.
	Waited time.Duration

	// Advisory is set when the resource has been downloaded repeatedly.
	// It never prevents the download.
	Advisory *ratelimit.Advisory
}

// Download streams the response body of req into w. Download starts are
// admitted through the download window (waiting by default, failing with
// ErrRateLimitExceeded in strict mode) and retried like FetchPage.
func (c *Client) Download(ctx context.Context, req Request, w io.Writer) (*DownloadResult, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: nil writer", ErrInvalidRequest)
	}
	req = req.clone()
	req.NotFoundIsEmpty = false

	method, err := requestMethod(req)
	if err != nil {
		return nil, err
	}
	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	if c.config.Serialize {
		c.mu.Lock()
		defer c.mu.Unlock()
	}

	waited, err := c.state.Downloads.Admit(ctx)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			downloadsTotal.WithLabelValues("rate_limited").Inc()
			return nil, fmt.Errorf("download %s: %w", redact(target), ErrRateLimitExceeded)
		}
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}
	if waited > 0 {
		c.logger.Debug().
			Str("url", redact(target)).
			Dur("waited", waited).
			Msg("Download admitted after window wait")
	}

	ex, err := c.dispatch(ctx, req, method, target, nil, w)
	if err != nil {
		downloadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	downloadsTotal.WithLabelValues("ok").Inc()
	downloadBytesTotal.Add(float64(ex.written))

	result := &DownloadResult{
		URL:        target.String(),
		StatusCode: ex.status,
		Header:     ex.header,
		Bytes:      ex.written,
		Attempts:   ex.attempts,
		Waited:     waited,
	}

	advisory, err := c.state.Repeats.Record(ctx, resourceKey(target))
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to count repeat download")
		return result, nil
	}
	if advisory != nil {
		result.Advisory = advisory
		c.logger.Warn().
			Str("resource", advisory.Resource).
			Int64("count", advisory.Count).
			Str("level", string(advisory.Level)).
			Msg(advisory.Message)
		if c.config.OnAdvisory != nil {
			c.config.OnAdvisory(*advisory)
		}
	}

	return result, nil
}

// DownloadURL downloads an absolute or base-relative URL into w.
func (c *Client) DownloadURL(ctx context.Context, rawURL string, w io.Writer) (*DownloadResult, error) {
	return c.Download(ctx, Request{Method: http.MethodGet, URL: rawURL, Format: FormatBinary}, w)
}

// resourceKey identifies a downloaded resource independent of its query
// string (signed URLs differ per request).
func resourceKey(u *url.URL) string {
	key := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	return key.String()
}
