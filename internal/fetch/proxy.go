package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/classify"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/httputil"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/platform"
)

// DefaultProxyBaseURL is the scraping proxy serving Shopee and Lazada captures.
const DefaultProxyBaseURL = "https://continuous-scraper.common.chartedapi.com"

// Proxy fetches Shopee or Lazada pages through the scraping proxy's run-single task.
type Proxy struct {
	platform platform.Platform
	client   *http.Client
	baseURL  string
	token    string
	retry    httputil.RetryPolicy
	now      func() time.Time
	log      *logger.Logger
}

// NewShopee creates the Shopee fetcher.
func NewShopee(opts Options) *Proxy {
	return newProxy(platform.Shopee, opts)
}

// NewLazada creates the Lazada fetcher.
func NewLazada(opts Options) *Proxy {
	return newProxy(platform.Lazada, opts)
}

func newProxy(p platform.Platform, opts Options) *Proxy {
	base := opts.BaseURL
	if base == "" {
		base = DefaultProxyBaseURL
	}
	return &Proxy{
		platform: p,
		client:   opts.client(),
		baseURL:  strings.TrimRight(base, "/"),
		token:    opts.Token,
		retry:    opts.Retry,
		now:      opts.now(),
		log:      opts.logger(p),
	}
}

func (f *Proxy) Platform() platform.Platform { return f.platform }

type runSingleRequest struct {
	URL                 string `json:"url"`
	CleanResponseBody   *bool  `json:"cleanResponseBody,omitempty"`
	EmulateMobileDevice *bool  `json:"emulateMobileDevice,omitempty"`
}

func (f *Proxy) payload(target classify.Target) runSingleRequest {
	switch f.platform {
	case platform.Shopee:
		return runSingleRequest{URL: target.URL}
	case platform.Lazada:
		clean, mobile := true, false
		return runSingleRequest{URL: target.URL, CleanResponseBody: &clean, EmulateMobileDevice: &mobile}
	case platform.Tiki:
		panic("tiki is fetched directly, not through the proxy")
	default:
		panic(fmt.Sprintf("payload: unknown platform %d", int(f.platform)))
	}
}

// Fetch POSTs {base}/scraping-tasks/{platform}/run-single and unwraps the envelope.
func (f *Proxy) Fetch(ctx context.Context, target classify.Target) (*capture.Capture, error) {
	name := f.platform.String()
	body, err := json.Marshal(f.payload(target))
	if err != nil {
		return nil, errors.NewFetch(name, 0, "", err)
	}

	endpoint := fmt.Sprintf("%s/scraping-tasks/%s/run-single", f.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewFetch(name, 0, "", err)
	}
	for k, v := range httputil.ProxyHeaders(f.token) {
		req.Header[k] = v
	}

	status, respBody, err := do(ctx, f.client, req, f.retry, f.platform, f.log)
	if err != nil {
		return nil, err
	}

	doc, err := DecodeEnvelope(f.platform, respBody)
	if err != nil {
		return nil, err
	}
	itemID := doc.String(f.platform.IDPath())
	if itemID == "" {
		return nil, errors.NewNestedDecode(name, "response has no "+f.platform.IDPath(), nil)
	}

	c := capture.New(f.platform, itemID, target.ShopID, doc, f.now())
	c.Status = status
	return c, nil
}

// DecodeEnvelope parses a proxy envelope. responseBody may arrive as a JSON encoded
// string or as an object; either way the stored document carries it as an object.
func DecodeEnvelope(p platform.Platform, data []byte) (capture.Document, error) {
	doc, err := capture.DecodeJSON(data)
	if err != nil {
		return nil, errors.NewNestedDecode(p.String(), "proxy envelope is not a JSON object", err)
	}

	switch raw := doc[capture.ResponseBodyField].(type) {
	case string:
		inner, err := capture.DecodeValue([]byte(raw))
		if err != nil {
			return nil, errors.NewNestedDecode(p.String(), "responseBody is not valid JSON", err)
		}
		obj, ok := inner.(map[string]any)
		if !ok {
			return nil, errors.NewNestedDecode(p.String(), fmt.Sprintf("responseBody decodes to %T, want object", inner), nil)
		}
		doc[capture.ResponseBodyField] = obj
	case map[string]any:
	case nil:
		return nil, errors.NewNestedDecode(p.String(), "envelope has no responseBody", nil)
	default:
		return nil, errors.NewNestedDecode(p.String(), fmt.Sprintf("responseBody is %T", raw), nil)
	}
	return doc, nil
}
