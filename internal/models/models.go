package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/platform"
)

// CanonicalProduct is the platform-independent view of one capture. Prices are in the
// displayed currency unit whatever the source encoding.
type CanonicalProduct struct {
	ItemID       string            `json:"item_id"`
	Platform     platform.Platform `json:"platform"`
	ShopID       string            `json:"shop_id,omitempty"`
	Title        string            `json:"title"`
	CurrentPrice decimal.Decimal   `json:"current_price"`
	Rating       float64           `json:"rating"`
	ReviewCount  int64             `json:"review_count"`
	StockQty     *int64            `json:"stock_qty,omitempty"`
	CapturedAt   time.Time         `json:"captured_at"`
}

// ProductDetail is the latest capture of an item: canonical fields plus the merged
// platform document.
type ProductDetail struct {
	Product CanonicalProduct `json:"product"`
	Detail  capture.Document `json:"detail"`
}

// PriceHistoryPoint is one (item, date) price observation.
type PriceHistoryPoint struct {
	ItemID string          `json:"itemId"`
	Date   string          `json:"date"`
	Title  string          `json:"title"`
	Price  decimal.Decimal `json:"salePrice"`
	SKU    string          `json:"sku,omitempty"`
	Stock  *int64          `json:"stock_qty,omitempty"`
}

// ProductInfo heads a price history.
type ProductInfo struct {
	ItemID   string            `json:"itemId"`
	Title    string            `json:"title"`
	Platform platform.Platform `json:"platform"`
}

// Statistics summarise a price history. LatestPrice is the last point, not the max.
type Statistics struct {
	LowestPrice       decimal.Decimal `json:"lowest_price"`
	HighestPrice      decimal.Decimal `json:"highest_price"`
	LatestPrice       decimal.Decimal `json:"latest_price"`
	FirstRecordedDate string          `json:"first_recorded_date"`
	LastRecordedDate  string          `json:"last_recorded_date"`
	TotalRecords      int             `json:"total_records"`
	CurrentStock      *int64          `json:"current_stock,omitempty"`
}

// PriceHistory is the grouped, date-ordered series for one item.
type PriceHistory struct {
	ProductInfo ProductInfo         `json:"product_info"`
	Points      []PriceHistoryPoint `json:"price_history"`
	Statistics  Statistics          `json:"statistics"`
}

// ReviewRollup is the Lazada review aggregate: every embedded review across the
// item's captures.
type ReviewRollup struct {
	ItemID        string `json:"itemId"`
	Reviews       []any  `json:"reviews"`
	TotalReviews  int    `json:"total_reviews"`
	RatingSummary any    `json:"rating_summary"`
}

// ReviewBundle answers a reviews query. Review is a *ReviewRollup for Lazada and the
// stored review document for Shopee and Tiki; nil when nothing is stored.
type ReviewBundle struct {
	ProductID string            `json:"product_id"`
	Platform  platform.Platform `json:"platform"`
	Review    any               `json:"review"`
}

// Found reports whether the bundle carries any review data.
func (b *ReviewBundle) Found() bool {
	return b != nil && b.Review != nil
}
