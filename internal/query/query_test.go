package query

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashop/datashop/internal/cache"
	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/models"
	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/store"
)

type faultyReader struct{}

var _ store.Reader = faultyReader{}

var errUnreachable = errors.NewStoreFault("", "connection refused", stderrors.New("dial tcp: refused"))

func (faultyReader) DistinctIDs(context.Context, platform.Platform) ([]string, error) {
	return nil, errUnreachable
}

func (faultyReader) Captures(context.Context, platform.Platform, string) ([]capture.Capture, error) {
	return nil, errUnreachable
}

func (faultyReader) Review(context.Context, string) (capture.Document, error) {
	return nil, errUnreachable
}

type memCache struct {
	items map[string][]byte
	gets  int
}

var _ cache.Cache = (*memCache)(nil)

func (m *memCache) Get(key string) ([]byte, error) {
	m.gets++
	v, ok := m.items[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *memCache) Set(key string, value []byte, _ time.Duration) error {
	m.items[key] = value
	return nil
}

func (m *memCache) Delete(key string) error {
	delete(m.items, key)
	return nil
}

func at(d, h int) time.Time {
	return time.Date(2024, 5, d, h, 0, 0, 0, time.UTC)
}

func tiki(id, price int64, stock any, t time.Time) *capture.Capture {
	doc := capture.Document{"id": id, "name": "Nồi cơm điện", "price": price}
	if stock != nil {
		doc["stock_item"] = map[string]any{"qty": stock}
	}
	return capture.New(platform.Tiki, capture.FormatID(id), "7", doc, t)
}

func shopee(id, price int64, t time.Time) *capture.Capture {
	return capture.New(platform.Shopee, capture.FormatID(id), "3", capture.Document{
		"responseBody": map[string]any{
			"data": map[string]any{
				"item": map[string]any{"item_id": id, "shop_id": int64(3), "title": "Tai nghe", "price": price},
			},
		},
	}, t)
}

func lazada(id int64, skus []any, reviews []any, t time.Time) *capture.Capture {
	body := map[string]any{
		"itemId":             id,
		"title":              "Áo thun",
		"ratingCountByScore": map[string]any{"5": int64(3), "4": int64(1)},
	}
	if skus != nil {
		body["skus"] = skus
	}
	if reviews != nil {
		body["reviews"] = reviews
	}
	return capture.New(platform.Lazada, capture.FormatID(id), "2", capture.Document{"responseBody": body}, t)
}

func seed(t *testing.T, caps ...*capture.Capture) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, c := range caps {
		_, err := s.Save(context.Background(), c)
		require.NoError(t, err)
	}
	return s
}

func newService(r store.Reader, opts ...Option) *Service {
	return NewService(r, append([]Option{WithLogger(logger.Nop())}, opts...)...)
}

func TestPriceHistoryFirstWinsPerDay(t *testing.T) {
	svc := newService(seed(t,
		tiki(1, 100, int64(5), at(1, 8)),
		tiki(1, 90, int64(4), at(1, 20)),
		tiki(1, 150, int64(3), at(2, 8)),
	))

	h, err := svc.GetPriceHistory(context.Background(), platform.Tiki, "1")
	require.NoError(t, err)
	require.Len(t, h.Points, 2)
	assert.Equal(t, "2024-05-01", h.Points[0].Date)
	assert.True(t, decimal.NewFromInt(100).Equal(h.Points[0].Price))
	assert.Equal(t, 2, h.Statistics.TotalRecords)
}

func TestPriceHistoryStatistics(t *testing.T) {
	svc := newService(seed(t,
		tiki(1, 100, int64(9), at(1, 8)),
		tiki(1, 150, int64(8), at(2, 8)),
		tiki(1, 120, int64(7), at(3, 8)),
	))

	h, err := svc.GetPriceHistory(context.Background(), platform.Tiki, "1")
	require.NoError(t, err)

	st := h.Statistics
	assert.True(t, decimal.NewFromInt(100).Equal(st.LowestPrice))
	assert.True(t, decimal.NewFromInt(150).Equal(st.HighestPrice))
	assert.True(t, decimal.NewFromInt(120).Equal(st.LatestPrice))
	assert.Equal(t, "2024-05-01", st.FirstRecordedDate)
	assert.Equal(t, "2024-05-03", st.LastRecordedDate)
	require.NotNil(t, st.CurrentStock)
	assert.Equal(t, int64(7), *st.CurrentStock)
	assert.Equal(t, models.ProductInfo{ItemID: "1", Title: "Nồi cơm điện", Platform: platform.Tiki}, h.ProductInfo)
}

func TestPriceHistoryTikiWithoutStockKept(t *testing.T) {
	svc := newService(seed(t, tiki(1, 100, nil, at(1, 8))))

	h, err := svc.GetPriceHistory(context.Background(), platform.Tiki, "1")
	require.NoError(t, err)
	require.Len(t, h.Points, 1)
	assert.Nil(t, h.Statistics.CurrentStock)
}

func TestPriceHistoryShopeeScaled(t *testing.T) {
	svc := newService(seed(t, shopee(10, 12500000, at(1, 8))))

	h, err := svc.GetPriceHistory(context.Background(), platform.Shopee, "10")
	require.NoError(t, err)
	require.Len(t, h.Points, 1)
	assert.Equal(t, "125", h.Points[0].Price.String())
	assert.Nil(t, h.Statistics.CurrentStock)
}

func TestPriceHistoryLazadaUnwindsSKUs(t *testing.T) {
	skus := []any{
		map[string]any{"skuId": int64(501), "salePrice": int64(80)},
		map[string]any{"skuId": int64(502), "salePrice": int64(95)},
	}
	svc := newService(seed(t,
		lazada(7, nil, nil, at(1, 6)),
		lazada(7, skus, nil, at(1, 8)),
		lazada(7, skus[1:], nil, at(2, 8)),
	))

	h, err := svc.GetPriceHistory(context.Background(), platform.Lazada, "7")
	require.NoError(t, err)
	require.Len(t, h.Points, 2)
	assert.Equal(t, "501", h.Points[0].SKU)
	assert.Equal(t, "502", h.Points[1].SKU)
	assert.Equal(t, "2024-05-02", h.Points[1].Date)
}

func TestSortIsStableByDate(t *testing.T) {
	points := []models.PriceHistoryPoint{
		{ItemID: "1", Date: "2024-05-02", SKU: "a"},
		{ItemID: "1", Date: "2024-05-01", SKU: "b"},
		{ItemID: "2", Date: "2024-05-02", SKU: "c"},
	}
	sortByDate(points)
	assert.Equal(t, []string{"b", "a", "c"}, []string{points[0].SKU, points[1].SKU, points[2].SKU})
}

func TestNotFoundIsNotStoreFault(t *testing.T) {
	ctx := context.Background()
	svc := newService(store.NewMemoryStore())

	for _, p := range platform.All() {
		_, err := svc.GetDetail(ctx, p, "404")
		assert.ErrorIs(t, err, errors.ErrNotFound, p.String())
		assert.NotErrorIs(t, err, errors.ErrStoreFault, p.String())

		_, err = svc.GetPriceHistory(ctx, p, "404")
		assert.ErrorIs(t, err, errors.ErrNotFound, p.String())

		bundle, err := svc.GetReviews(ctx, p, "404")
		require.NoError(t, err, p.String())
		assert.False(t, bundle.Found())
	}

	ids, err := svc.ListIDs(ctx, platform.Tiki)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStoreFaultPropagates(t *testing.T) {
	ctx := context.Background()
	svc := newService(faultyReader{})

	_, err := svc.GetDetail(ctx, platform.Tiki, "1")
	assert.ErrorIs(t, err, errors.ErrStoreFault)
	assert.NotErrorIs(t, err, errors.ErrNotFound)

	_, err = svc.GetReviews(ctx, platform.Shopee, "1")
	assert.ErrorIs(t, err, errors.ErrStoreFault)

	_, err = svc.ListAll(ctx)
	assert.ErrorIs(t, err, errors.ErrStoreFault)
}

func TestGetDetailUsesLatestCapture(t *testing.T) {
	svc := newService(seed(t,
		tiki(1, 100, int64(5), at(1, 8)),
		tiki(1, 130, int64(2), at(3, 8)),
	))

	d, err := svc.GetDetail(context.Background(), platform.Tiki, "1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(130).Equal(d.Product.CurrentPrice))
	assert.Equal(t, int64(130), d.Detail["price"])
}

func TestGetReviews(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		lazada(7, nil, []any{map[string]any{"rating": int64(5)}}, at(1, 8)),
		lazada(7, nil, []any{map[string]any{"rating": int64(4)}, map[string]any{"rating": int64(3)}}, at(2, 8)),
	)
	require.NoError(t, s.SaveReview(ctx, "10", capture.Document{"id": "10", "reviews": []any{}}))
	svc := newService(s)

	bundle, err := svc.GetReviews(ctx, platform.Lazada, "7")
	require.NoError(t, err)
	rollup, ok := bundle.Review.(*models.ReviewRollup)
	require.True(t, ok)
	assert.Equal(t, 3, rollup.TotalReviews)
	assert.Equal(t, map[string]any{"5": int64(3), "4": int64(1)}, rollup.RatingSummary)

	bundle, err = svc.GetReviews(ctx, platform.Shopee, "10")
	require.NoError(t, err)
	assert.True(t, bundle.Found())
	assert.Equal(t, "10", bundle.ProductID)
}

func TestListAll(t *testing.T) {
	svc := newService(seed(t,
		tiki(1, 100, nil, at(1, 8)),
		shopee(10, 100000, at(1, 8)),
	))

	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, all[platform.Tiki])
	assert.Equal(t, []string{"10"}, all[platform.Shopee])
	assert.Empty(t, all[platform.Lazada])
}

func TestPriceHistoryCache(t *testing.T) {
	ctx := context.Background()
	s := seed(t, tiki(1, 100, int64(5), at(1, 8)))
	mc := &memCache{items: map[string][]byte{}}
	svc := newService(s, WithCache(mc, time.Minute))

	first, err := svc.GetPriceHistory(ctx, platform.Tiki, "1")
	require.NoError(t, err)
	require.Contains(t, mc.items, "history:tiki:1")

	// later captures stay invisible until the entry expires or is dropped
	_, err = s.Save(ctx, tiki(1, 200, int64(1), at(2, 8)))
	require.NoError(t, err)

	second, err := svc.GetPriceHistory(ctx, platform.Tiki, "1")
	require.NoError(t, err)
	assert.Equal(t, first.Statistics.TotalRecords, second.Statistics.TotalRecords)
	assert.True(t, first.Statistics.LatestPrice.Equal(second.Statistics.LatestPrice))
	assert.Equal(t, platform.Tiki, second.ProductInfo.Platform)
	assert.Equal(t, 2, mc.gets)
}

func TestPriceHistoryCacheDropped(t *testing.T) {
	ctx := context.Background()
	s := seed(t, tiki(1, 100, int64(5), at(1, 8)))
	mc := &memCache{items: map[string][]byte{}}
	svc := newService(s, WithCache(mc, time.Minute))

	_, err := svc.GetPriceHistory(ctx, platform.Tiki, "1")
	require.NoError(t, err)

	_, err = s.Save(ctx, tiki(1, 200, int64(1), at(2, 8)))
	require.NoError(t, err)
	require.NoError(t, mc.Delete(cache.HistoryKey(platform.Tiki, "1")))

	h, err := svc.GetPriceHistory(ctx, platform.Tiki, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, h.Statistics.TotalRecords)
	assert.True(t, decimal.NewFromInt(200).Equal(h.Statistics.LatestPrice))
}

func TestNumericIDsMatchWithLeadingZeros(t *testing.T) {
	ctx := context.Background()
	s := seed(t, tiki(123, 100, int64(5), at(1, 8)))
	require.NoError(t, s.SaveReview(ctx, "123", capture.Document{"id": "123", "rating": int64(5)}))
	svc := newService(s)

	d, err := svc.GetDetail(ctx, platform.Tiki, "0123")
	require.NoError(t, err)
	assert.Equal(t, "123", d.Product.ItemID)

	h, err := svc.GetPriceHistory(ctx, platform.Tiki, "00123")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Statistics.TotalRecords)

	b, err := svc.GetReviews(ctx, platform.Tiki, "0123")
	require.NoError(t, err)
	assert.True(t, b.Found())
	assert.Equal(t, "123", b.ProductID)

	_, err = svc.GetDetail(ctx, platform.Tiki, "1230")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
