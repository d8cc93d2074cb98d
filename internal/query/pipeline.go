package query

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/models"
	"github.com/datashop/datashop/internal/normalize"
	"github.com/datashop/datashop/internal/platform"
)

// project turns captures, oldest first, into one row per price observation. Lazada
// captures contribute one row per sku and are dropped when they carry none. Rows
// whose price cannot be read are skipped.
func project(captures []capture.Capture) []models.PriceHistoryPoint {
	var rows []models.PriceHistoryPoint
	for _, c := range captures {
		switch c.Platform {
		case platform.Shopee:
			rows = appendRow(rows, projectShopee(c))
		case platform.Lazada:
			rows = append(rows, projectLazada(c)...)
		case platform.Tiki:
			rows = appendRow(rows, projectTiki(c))
		default:
			panic(fmt.Sprintf("project: unknown platform %d", int(c.Platform)))
		}
	}
	return rows
}

func appendRow(rows []models.PriceHistoryPoint, row *models.PriceHistoryPoint) []models.PriceHistoryPoint {
	if row == nil {
		return rows
	}
	return append(rows, *row)
}

func projectShopee(c capture.Capture) *models.PriceHistoryPoint {
	item, ok := c.Payload().Object("data.item")
	if !ok {
		return nil
	}
	price, ok := normalize.ShopeePrice(item["price"])
	if !ok {
		return nil
	}
	return &models.PriceHistoryPoint{
		ItemID: capture.FormatID(item["item_id"]),
		Date:   c.Date(),
		Title:  item.String("title"),
		Price:  price,
	}
}

func projectLazada(c capture.Capture) []models.PriceHistoryPoint {
	body := c.Payload()
	if body == nil {
		return nil
	}
	var rows []models.PriceHistoryPoint
	for _, raw := range capture.AsList(body["skus"]) {
		sku, ok := capture.AsMap(raw)
		if !ok {
			continue
		}
		price, ok := normalize.Price(sku["salePrice"])
		if !ok {
			continue
		}
		rows = append(rows, models.PriceHistoryPoint{
			ItemID: capture.FormatID(body["itemId"]),
			Date:   c.Date(),
			Title:  body.String("title"),
			Price:  price,
			SKU:    capture.FormatID(sku["skuId"]),
		})
	}
	return rows
}

func projectTiki(c capture.Capture) *models.PriceHistoryPoint {
	doc := c.Payload()
	price, ok := normalize.Price(doc["price"])
	if !ok {
		return nil
	}
	row := &models.PriceHistoryPoint{
		ItemID: capture.FormatID(doc["id"]),
		Date:   c.Date(),
		Title:  doc.String("name"),
		Price:  price,
	}
	if v, ok := doc.Lookup("stock_item.qty"); ok {
		if n, ok := capture.Number(v); ok {
			qty := int64(n)
			row.Stock = &qty
		}
	}
	return row
}

type groupKey struct {
	itemID string
	date   string
}

// group collapses rows sharing (item id, date), keeping the first row seen.
func group(rows []models.PriceHistoryPoint) []models.PriceHistoryPoint {
	seen := make(map[groupKey]struct{}, len(rows))
	out := make([]models.PriceHistoryPoint, 0, len(rows))
	for _, r := range rows {
		k := groupKey{itemID: r.ItemID, date: r.Date}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// sortByDate orders points by date ascending, keeping capture order within a date.
func sortByDate(points []models.PriceHistoryPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date < points[j].Date
	})
}

// buildHistory runs the whole price-history pipeline. It returns nil when no point
// survives.
func buildHistory(p platform.Platform, captures []capture.Capture) *models.PriceHistory {
	points := group(project(captures))
	if len(points) == 0 {
		return nil
	}
	sortByDate(points)
	first, last := points[0], points[len(points)-1]
	h := &models.PriceHistory{
		ProductInfo: models.ProductInfo{
			ItemID:   first.ItemID,
			Title:    first.Title,
			Platform: p,
		},
		Points: points,
		Statistics: models.Statistics{
			LowestPrice:       first.Price,
			HighestPrice:      first.Price,
			LatestPrice:       last.Price,
			FirstRecordedDate: first.Date,
			LastRecordedDate:  last.Date,
			TotalRecords:      len(points),
		},
	}
	for _, pt := range points[1:] {
		h.Statistics.LowestPrice = decimal.Min(h.Statistics.LowestPrice, pt.Price)
		h.Statistics.HighestPrice = decimal.Max(h.Statistics.HighestPrice, pt.Price)
	}
	if p == platform.Tiki {
		h.Statistics.CurrentStock = last.Stock
	}
	return h
}

// rollupReviews gathers every review embedded in an item's Lazada captures. The
// rating summary comes from the first capture that has one.
func rollupReviews(itemID string, captures []capture.Capture) *models.ReviewRollup {
	r := &models.ReviewRollup{ItemID: itemID, Reviews: []any{}}
	for _, c := range captures {
		body := c.Payload()
		if body == nil {
			continue
		}
		reviews := capture.AsList(body["reviews"])
		if len(reviews) == 0 {
			continue
		}
		if r.RatingSummary == nil {
			r.RatingSummary = body["ratingCountByScore"]
		}
		r.Reviews = append(r.Reviews, reviews...)
	}
	r.TotalReviews = len(r.Reviews)
	if r.TotalReviews == 0 {
		return nil
	}
	return r
}
