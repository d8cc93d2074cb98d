package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/classify"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/httputil"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/platform"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

var (
	_ Fetcher = (*Tiki)(nil)
	_ Fetcher = (*Proxy)(nil)
)

func TestTikiFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/products/274866237", r.URL.Path)
		assert.Equal(t, "web", r.URL.Query().Get("platform"))
		assert.Equal(t, "274866238", r.URL.Query().Get("spid"))
		assert.Equal(t, "3", r.URL.Query().Get("version"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte(`{"id": 274866237, "name": "Bình giữ nhiệt", "price": 125000, "stock_item": {"qty": 7}}`))
	}))
	defer srv.Close()

	f := NewTiki(Options{BaseURL: srv.URL + "/api/v2/products", Now: fixedNow})
	c, err := f.Fetch(context.Background(), classify.Target{Platform: platform.Tiki, ItemID: "274866237", ShopID: "274866238"})
	require.NoError(t, err)

	assert.Equal(t, platform.Tiki, c.Platform)
	assert.Equal(t, "274866237", c.ItemID)
	assert.Equal(t, http.StatusOK, c.Status)
	assert.Equal(t, int64(274866237), c.Document["id"])
	assert.Equal(t, "2024-05-01T09:30:00Z", c.Document[capture.TimestampField])
}

func TestFetchLogsResponseStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "name": "x", "price": 10}`))
	}))
	defer srv.Close()

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	f := NewTiki(Options{BaseURL: srv.URL, Logger: logger.New(&buf)})
	_, err := f.Fetch(context.Background(), classify.Target{ItemID: "1", ShopID: "2"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"status":200`)
	assert.Contains(t, buf.String(), "response received")
}

func TestTikiFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found"}}`))
	}))
	defer srv.Close()

	f := NewTiki(Options{BaseURL: srv.URL, Retry: httputil.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}})
	_, err := f.Fetch(context.Background(), classify.Target{ItemID: "1", ShopID: "2"})
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindFetch, e.Kind)
	assert.Equal(t, http.StatusNotFound, e.Status)
	assert.Contains(t, e.Body, "not found")
}

func TestTikiFetchBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>blocked</html>`))
	}))
	defer srv.Close()

	_, err := NewTiki(Options{BaseURL: srv.URL}).Fetch(context.Background(), classify.Target{ItemID: "1", ShopID: "2"})
	assert.True(t, stderrors.Is(err, errors.ErrNestedDecode))
}

func TestLazadaFetchDecodesNestedBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scraping-tasks/lazada/run-single", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		inner := `{"itemId": 2406455047, "title": "Áo thun", "skus": [{"salePrice": 99000}]}`
		json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "responseBody": inner})
	}))
	defer srv.Close()

	f := NewLazada(Options{BaseURL: srv.URL, Token: "secret", Now: fixedNow})
	target := classify.Target{Platform: platform.Lazada, ItemID: "999", ShopID: "11722456911", URL: "https://www.lazada.vn/products/ao-i2406455047-s11722456911.html"}
	c, err := f.Fetch(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, target.URL, got["url"])
	assert.Equal(t, true, got["cleanResponseBody"])
	assert.Equal(t, false, got["emulateMobileDevice"])

	// the id comes from the response, not the URL
	assert.Equal(t, "2406455047", c.ItemID)
	assert.Equal(t, "Áo thun", c.Payload()["title"])
	assert.Equal(t, "11722456911", c.ShopID)
}

func TestShopeeFetchObjectBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"responseBody": {"data": {"item": {"item_id": 22349612345, "title": "Tai nghe", "price": 12500000}}}}`))
	}))
	defer srv.Close()

	c, err := NewShopee(Options{BaseURL: srv.URL}).Fetch(context.Background(), classify.Target{URL: "https://shopee.vn/api/v4/x?item_id=1&shop_id=2", ShopID: "2"})
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Equal(t, "22349612345", c.ItemID)
	assert.Equal(t, platform.Shopee, c.Platform)
}

func TestProxyNestedDecodeFailures(t *testing.T) {
	for name, envelope := range map[string]string{
		"bad nested string": `{"responseBody": "{not json"}`,
		"nested array":      `{"responseBody": "[1,2]"}`,
		"trailing markup":   `{"responseBody": "{\"itemId\": 5}<html>blocked</html>"}`,
		"two nested values": `{"responseBody": "{\"itemId\": 5} {\"itemId\": 6}"}`,
		"missing body":      `{"statusCode": 200}`,
		"missing id":        `{"responseBody": {"title": "x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(envelope))
			}))
			defer srv.Close()

			_, err := NewLazada(Options{BaseURL: srv.URL}).Fetch(context.Background(), classify.Target{URL: "u"})
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrNestedDecode), err.Error())
			assert.False(t, stderrors.Is(err, errors.ErrFetch))
		})
	}
}

func TestDecodeEnvelopeTrailingData(t *testing.T) {
	_, err := DecodeEnvelope(platform.Lazada, []byte(`{"responseBody":"{\"itemId\": 5}<html>blocked</html>"}`))
	assert.ErrorIs(t, err, errors.ErrNestedDecode)

	doc, err := DecodeEnvelope(platform.Lazada, []byte(`{"responseBody":"{\"itemId\": 5}\n  "}`))
	require.NoError(t, err)
	assert.Equal(t, "5", doc.String("responseBody.itemId"))
}

func TestProxyHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad token"))
	}))
	defer srv.Close()

	_, err := NewShopee(Options{BaseURL: srv.URL}).Fetch(context.Background(), classify.Target{URL: "u"})
	assert.True(t, stderrors.Is(err, errors.ErrFetch))
	assert.Equal(t, errors.KindFetch, errors.KindOf(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewTiki(Options{}), NewShopee(Options{}))

	f, err := r.Get(platform.Shopee)
	require.NoError(t, err)
	assert.Equal(t, platform.Shopee, f.Platform())

	_, err = r.Get(platform.Lazada)
	assert.Error(t, err)

	r.Register(NewLazada(Options{}))
	assert.Equal(t, []platform.Platform{platform.Lazada, platform.Shopee, platform.Tiki}, r.Platforms())
}
