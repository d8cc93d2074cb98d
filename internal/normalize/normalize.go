// Package normalize turns raw platform captures into canonical products. Dispatch is
// always on the capture's platform tag, never on the shape of its payload.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/models"
	"github.com/datashop/datashop/internal/platform"
)

// ShopeePriceScale is the factor between Shopee's stored integer price and the
// displayed currency unit.
const ShopeePriceScale = 100000

// Field paths inside each platform's payload.
const (
	shopeeItemPath = "data.item"
	lazadaSKUsPath = "skus"
)

// Normalize maps one capture onto the canonical product.
func Normalize(c capture.Capture) (models.CanonicalProduct, error) {
	switch c.Platform {
	case platform.Shopee:
		return normalizeShopee(c)
	case platform.Lazada:
		return normalizeLazada(c)
	case platform.Tiki:
		return normalizeTiki(c)
	default:
		return models.CanonicalProduct{}, fmt.Errorf("normalize: unknown platform %d", int(c.Platform))
	}
}

func normalizeShopee(c capture.Capture) (models.CanonicalProduct, error) {
	item, ok := c.Payload().Object(shopeeItemPath)
	if !ok {
		return models.CanonicalProduct{}, malformed(c, "responseBody.data.item missing")
	}
	p := models.CanonicalProduct{
		ItemID:     capture.FormatID(item["item_id"]),
		Platform:   platform.Shopee,
		ShopID:     firstNonEmpty(capture.FormatID(item["shop_id"]), c.ShopID),
		Title:      firstNonEmpty(item.String("title"), item.String("name")),
		CapturedAt: c.CapturedAt,
	}
	p.CurrentPrice, _ = ShopeePrice(item["price"])
	if v, ok := item.Lookup("item_rating.rating_star"); ok {
		p.Rating, _ = capture.Number(v)
	}
	if v, ok := item.Lookup("item_rating.rating_count"); ok {
		if counts := capture.AsList(v); len(counts) > 0 {
			n, _ := capture.Number(counts[0])
			p.ReviewCount = int64(n)
		}
	}
	return withID(c, p)
}

func normalizeLazada(c capture.Capture) (models.CanonicalProduct, error) {
	body := c.Payload()
	if body == nil {
		return models.CanonicalProduct{}, malformed(c, "responseBody missing")
	}
	p := models.CanonicalProduct{
		ItemID:     capture.FormatID(body["itemId"]),
		Platform:   platform.Lazada,
		ShopID:     c.ShopID,
		Title:      body.String("title"),
		CapturedAt: c.CapturedAt,
	}
	price := body["price"]
	if skus := capture.AsList(body[lazadaSKUsPath]); len(skus) > 0 {
		if sku, ok := capture.AsMap(skus[0]); ok {
			if v, ok := sku["salePrice"]; ok {
				price = v
			}
		}
	}
	p.CurrentPrice, _ = Price(price)
	p.Rating, p.ReviewCount = RatingFromCounts(body["ratingCountByScore"])
	return withID(c, p)
}

func normalizeTiki(c capture.Capture) (models.CanonicalProduct, error) {
	doc := c.Payload()
	p := models.CanonicalProduct{
		ItemID:     capture.FormatID(doc["id"]),
		Platform:   platform.Tiki,
		ShopID:     c.ShopID,
		Title:      doc.String("name"),
		CapturedAt: c.CapturedAt,
	}
	p.CurrentPrice, _ = Price(doc["price"])
	p.Rating, _ = capture.Number(doc["rating_average"])
	if n, ok := capture.Number(doc["review_count"]); ok {
		p.ReviewCount = int64(n)
	}
	if v, ok := doc.Lookup("stock_item.qty"); ok {
		if n, ok := capture.Number(v); ok {
			qty := int64(n)
			p.StockQty = &qty
		}
	}
	return withID(c, p)
}

func withID(c capture.Capture, p models.CanonicalProduct) (models.CanonicalProduct, error) {
	if p.ItemID == "" {
		return p, malformed(c, "item id missing")
	}
	return p, nil
}

func malformed(c capture.Capture, msg string) error {
	return errors.NewNestedDecode(c.Platform.String(), msg, nil)
}

// Price converts a stored Lazada or Tiki price to a decimal.
func Price(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case int64:
		return decimal.NewFromInt(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// ShopeePrice converts Shopee's scaled integer price to the displayed unit.
func ShopeePrice(v any) (decimal.Decimal, bool) {
	d, ok := Price(v)
	if !ok {
		return decimal.Zero, false
	}
	return d.Div(decimal.NewFromInt(ShopeePriceScale)), true
}

// RatingFromCounts derives the average rating and total count from Lazada's
// ratingCountByScore, which arrives either as {"5": n, ...} or as a list indexed by
// score-1.
func RatingFromCounts(v any) (float64, int64) {
	var total, weighted float64
	add := func(score, count float64) {
		total += count
		weighted += score * count
	}
	if m, ok := capture.AsMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			score, err := strconv.ParseFloat(k, 64)
			if err != nil {
				continue
			}
			if n, ok := capture.Number(m[k]); ok {
				add(score, n)
			}
		}
	} else {
		for i, raw := range capture.AsList(v) {
			if n, ok := capture.Number(raw); ok {
				add(float64(i+1), n)
			}
		}
	}
	if total == 0 {
		return 0, 0
	}
	return math.Round(weighted/total*100) / 100, int64(total)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
