package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/classify"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/httputil"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/platform"
)

// DefaultTikiBaseURL is the storefront product endpoint.
const DefaultTikiBaseURL = "https://tiki.vn/api/v2/products"

// Tiki fetches products straight from the Tiki storefront API.
type Tiki struct {
	client  *http.Client
	baseURL string
	retry   httputil.RetryPolicy
	now     func() time.Time
	log     *logger.Logger
}

// NewTiki creates the Tiki fetcher. Pass a client built on the stealth transport.
func NewTiki(opts Options) *Tiki {
	base := opts.BaseURL
	if base == "" {
		base = DefaultTikiBaseURL
	}
	return &Tiki{
		client:  opts.client(),
		baseURL: strings.TrimRight(base, "/"),
		retry:   opts.Retry,
		now:     opts.now(),
		log:     opts.logger(platform.Tiki),
	}
}

func (t *Tiki) Platform() platform.Platform { return platform.Tiki }

// Fetch issues GET {base}/{item_id}?platform=web&spid={shop_id}&version=3.
func (t *Tiki) Fetch(ctx context.Context, target classify.Target) (*capture.Capture, error) {
	q := url.Values{}
	q.Set("platform", "web")
	q.Set("spid", target.ShopID)
	q.Set("version", "3")
	endpoint := fmt.Sprintf("%s/%s?%s", t.baseURL, url.PathEscape(target.ItemID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewFetch(platform.Tiki.String(), 0, "", err)
	}
	for k, v := range httputil.StorefrontHeaders() {
		req.Header[k] = v
	}
	req.Header.Set("Referer", target.URL)

	status, body, err := do(ctx, t.client, req, t.retry, platform.Tiki, t.log)
	if err != nil {
		return nil, err
	}

	doc, err := capture.DecodeJSON(body)
	if err != nil {
		return nil, errors.NewNestedDecode(platform.Tiki.String(), "storefront body is not a JSON object", err)
	}
	itemID := doc.String(platform.Tiki.IDPath())
	if itemID == "" {
		return nil, errors.NewNestedDecode(platform.Tiki.String(), "response has no id", nil)
	}

	c := capture.New(platform.Tiki, itemID, target.ShopID, doc, t.now())
	c.Status = status
	return c, nil
}

// do sends req and returns the body of a 200 response. Anything else becomes a
// fetch error carrying status and body text.
func do(ctx context.Context, client *http.Client, req *http.Request, policy httputil.RetryPolicy, p platform.Platform, log *logger.Logger) (int, []byte, error) {
	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, client, req, policy)
	if err != nil {
		log.Debug().Err(err).Str("url", req.URL.String()).Msg("request failed")
		return 0, nil, errors.NewFetch(p.String(), 0, "", err)
	}
	defer resp.Body.Close()
	log.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("response received")

	body, err := httputil.ReadBody(resp)
	if err != nil {
		return resp.StatusCode, nil, errors.NewFetch(p.String(), resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, errors.NewFetch(p.String(), resp.StatusCode, truncate(string(body), 2048), nil)
	}
	return resp.StatusCode, body, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
