package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/datashop/datashop/internal/ingest"
	"github.com/datashop/datashop/internal/models"
	"github.com/datashop/datashop/internal/platform"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printIDs(p platform.Platform, ids []string) {
	fmt.Fprintf(os.Stdout, "%s (%d)\n", p, len(ids))
	for _, id := range ids {
		fmt.Fprintf(os.Stdout, "    %s\n", id)
	}
}

// printProduct prints a canonical product in a card layout.
func printProduct(p models.CanonicalProduct) {
	fmt.Fprintf(os.Stdout, " %s\n", p.Title)
	line := "    Price: " + formatPrice(p.CurrentPrice)
	if p.Rating > 0 {
		line += fmt.Sprintf("  |  Rating: %.2f (%d)", p.Rating, p.ReviewCount)
	}
	if p.StockQty != nil {
		line += fmt.Sprintf("  |  Stock: %d", *p.StockQty)
	}
	fmt.Fprintln(os.Stdout, line)
	fmt.Fprintf(os.Stdout, "    %s item %s", p.Platform, p.ItemID)
	if p.ShopID != "" {
		fmt.Fprintf(os.Stdout, ", shop %s", p.ShopID)
	}
	if !p.CapturedAt.IsZero() {
		fmt.Fprintf(os.Stdout, ", captured %s", p.CapturedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(os.Stdout)
}

func printHistory(h *models.PriceHistory) {
	fmt.Fprintf(os.Stdout, " %s  [%s %s]\n", truncate(h.ProductInfo.Title, 60), h.ProductInfo.Platform, h.ProductInfo.ItemID)
	for _, pt := range h.Points {
		line := fmt.Sprintf("    %s  %14s", pt.Date, formatPrice(pt.Price))
		if pt.SKU != "" {
			line += "  sku " + pt.SKU
		}
		if pt.Stock != nil {
			line += fmt.Sprintf("  stock %d", *pt.Stock)
		}
		fmt.Fprintln(os.Stdout, line)
	}
	st := h.Statistics
	fmt.Fprintf(os.Stdout, "    Low %s  |  High %s  |  Latest %s  |  %d days (%s to %s)\n",
		formatPrice(st.LowestPrice), formatPrice(st.HighestPrice), formatPrice(st.LatestPrice),
		st.TotalRecords, st.FirstRecordedDate, st.LastRecordedDate)
}

func printReport(r ingest.Report) {
	for i, o := range r.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = "FAILED"
		}
		fmt.Fprintf(os.Stdout, " %d. [%s] %s\n", i+1, status, o.URL)
		if o.Err != nil {
			fmt.Fprintf(os.Stdout, "    %v\n", o.Err)
			continue
		}
		fmt.Fprintf(os.Stdout, "    %s item %s -> %s\n", o.Platform, o.ItemID, o.Location)
	}
	fmt.Fprintln(os.Stdout, r.Summary())
}

// formatPrice formats a price as "1.234.567 ₫", keeping up to two decimals.
func formatPrice(d decimal.Decimal) string {
	neg := d.IsNegative()
	whole := d.Abs().Truncate(0).String()
	frac := d.Abs().Sub(d.Abs().Truncate(0))

	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	s := strings.Join(parts, ".")
	if !frac.IsZero() {
		s += "," + strings.TrimPrefix(frac.StringFixed(2), "0.")
	}
	if neg {
		s = "-" + s
	}
	return s + " ₫"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
