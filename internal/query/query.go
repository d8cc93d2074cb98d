// Package query answers read requests over stored captures: product ids, latest
// detail, grouped price history and reviews. It is read-only and safe for concurrent
// use as long as the underlying store is.
package query

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datashop/datashop/internal/cache"
	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/models"
	"github.com/datashop/datashop/internal/normalize"
	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/store"
)

// DefaultCacheTTL applies when WithCache is given a non-positive ttl.
const DefaultCacheTTL = 5 * time.Minute

// Service runs queries against a store reader.
type Service struct {
	reader store.Reader
	cache  cache.Cache
	ttl    time.Duration
	log    *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables read-through caching of price histories.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		s.cache = c
		s.ttl = ttl
	}
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a query service over reader.
func NewService(reader store.Reader, opts ...Option) *Service {
	s := &Service{reader: reader, log: logger.ForComponent("query")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListIDs returns the distinct item ids stored for p. No data is an empty slice.
func (s *Service) ListIDs(ctx context.Context, p platform.Platform) ([]string, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("list ids: invalid platform %d", int(p))
	}
	ids, err := s.reader.DistinctIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ListAll returns the item ids of every platform, queried concurrently.
func (s *Service) ListAll(ctx context.Context) (map[platform.Platform][]string, error) {
	var mu sync.Mutex
	out := make(map[platform.Platform][]string, len(platform.All()))

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range platform.All() {
		g.Go(func() error {
			ids, err := s.ListIDs(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			out[p] = ids
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDetail returns the latest capture of an item, normalized and flattened.
func (s *Service) GetDetail(ctx context.Context, p platform.Platform, itemID string) (*models.ProductDetail, error) {
	captures, err := s.captures(ctx, p, itemID)
	if err != nil {
		return nil, err
	}
	latest := captures[len(captures)-1]

	product, err := normalize.Normalize(latest)
	if err != nil {
		return nil, err
	}
	detail, err := normalize.Detail(latest)
	if err != nil {
		return nil, err
	}
	return &models.ProductDetail{Product: product, Detail: detail}, nil
}

// GetPriceHistory returns the item's prices grouped by (item, date), first capture of
// the day winning, ordered by date.
func (s *Service) GetPriceHistory(ctx context.Context, p platform.Platform, itemID string) (*models.PriceHistory, error) {
	itemID = capture.CanonicalID(itemID)
	key := cache.HistoryKey(p, itemID)
	var cached models.PriceHistory
	if s.cacheGet(key, &cached) {
		return &cached, nil
	}

	captures, err := s.captures(ctx, p, itemID)
	if err != nil {
		return nil, err
	}
	h := buildHistory(p, captures)
	if h == nil {
		return nil, errors.NewNotFound(p.String(), fmt.Sprintf("no price history for %s", itemID))
	}
	s.cacheSet(key, h)
	return h, nil
}

// GetReviews returns the reviews of a product. Lazada reviews are rolled up from the
// item's captures; Shopee and Tiki read the review partition by string id. Nothing
// stored gives a bundle whose Review is nil, never an error.
func (s *Service) GetReviews(ctx context.Context, p platform.Platform, productID string) (*models.ReviewBundle, error) {
	productID = capture.CanonicalID(productID)
	bundle := &models.ReviewBundle{ProductID: productID, Platform: p}

	switch p {
	case platform.Lazada:
		captures, err := s.reader.Captures(ctx, p, productID)
		if err != nil {
			return nil, err
		}
		if r := rollupReviews(productID, captures); r != nil {
			bundle.Review = r
		}
	case platform.Shopee, platform.Tiki:
		doc, err := s.reader.Review(ctx, productID)
		switch {
		case stderrors.Is(err, errors.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			bundle.Review = doc
		}
	default:
		return nil, fmt.Errorf("get reviews: invalid platform %d", int(p))
	}
	return bundle, nil
}

// captures loads an item's captures. Numeric ids are looked up in canonical form.
func (s *Service) captures(ctx context.Context, p platform.Platform, itemID string) ([]capture.Capture, error) {
	itemID = capture.CanonicalID(itemID)
	if !p.Valid() {
		return nil, fmt.Errorf("invalid platform %d", int(p))
	}
	captures, err := s.reader.Captures(ctx, p, itemID)
	if err != nil {
		return nil, err
	}
	if len(captures) == 0 {
		return nil, errors.NewNotFound(p.String(), fmt.Sprintf("item %s not found", itemID))
	}
	return captures, nil
}

func (s *Service) cacheGet(key string, v any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(key)
	if err != nil {
		if !stderrors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	return true
}

func (s *Service) cacheSet(key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(key, data, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
