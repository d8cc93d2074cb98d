package httputil

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/datashop/datashop/internal/errors"
)

// DefaultTimeout bounds every remote call made by the fetchers.
const DefaultTimeout = 30 * time.Second

// RetryPolicy controls DoWithRetry. Attempts after the first wait Backoff*attempt.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy retries twice, 500ms then 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond}
}

// NewHTTPClient creates an HTTP client with the given timeout (DefaultTimeout when
// zero). An optional RoundTripper (e.g. the stealth transport) can be injected.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// DoWithRetry performs an HTTP request, retrying transport errors and the statuses a
// fetch error reports as retryable (5xx and 429). Other 4xx responses are returned to
// the caller as-is. On retry, the request body is reset
// via req.GetBody. The last 5xx response is returned when retries run out so the
// caller can report its status and body.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	req = req.WithContext(ctx)
	var lastErr error
	for i := 0; i <= policy.MaxRetries; i++ {
		if i > 0 {
			if err := sleep(ctx, time.Duration(i)*policy.Backoff); err != nil {
				return nil, err
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("reset request body for retry: %w", err)
				}
				req.Body = body
			}
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 400 && i < policy.MaxRetries {
			if ferr := errors.NewFetch(req.URL.Host, resp.StatusCode, "", nil); ferr.IsRetryable() {
				resp.Body.Close()
				lastErr = ferr
				continue
			}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", policy.MaxRetries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReadBody reads and decompresses an HTTP response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	var reader io.ReadCloser
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		var err error
		reader, err = gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer reader.Close()
	case "br":
		reader = io.NopCloser(brotli.NewReader(resp.Body))
	default:
		reader = resp.Body
	}
	return io.ReadAll(reader)
}
