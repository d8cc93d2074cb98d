// Package classify maps a raw product URL onto the marketplace it belongs to and the
// item and shop ids it addresses.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

// Target is a classified URL: everything a fetcher needs to capture one item.
type Target struct {
	Platform platform.Platform
	ItemID   string
	ShopID   string
	URL      string
}

var (
	shopeeItemRe = regexp.MustCompile(`(?:^|&)item_id=(\d+)(?:&|$)`)
	shopeeShopRe = regexp.MustCompile(`(?:^|&)shop_id=(\d+)(?:&|$)`)
	tikiRe       = regexp.MustCompile(`p(\d+)\.html.*spid=(\d+)`)
	lazadaRe     = regexp.MustCompile(`-i(\d+)-s(\d+)\.html`)
)

// Classify resolves rawURL. Rules are checked in order and the first match wins:
// a Shopee API call with item_id and shop_id, a Tiki product page with spid, a Lazada
// product page. Anything else, including a Shopee URL missing one of its ids, is a
// classification error.
func Classify(rawURL string) (Target, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return Target{}, errors.NewClassification(rawURL, "not an https URL")
	}
	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return Target{}, errors.NewClassification(rawURL, "unrecognised host")
	}

	switch {
	case domain == "shopee.vn" && host == "shopee.vn" && strings.HasPrefix(u.Path, "/api/v4/"):
		item := shopeeItemRe.FindStringSubmatch(u.RawQuery)
		shop := shopeeShopRe.FindStringSubmatch(u.RawQuery)
		if item == nil || shop == nil {
			return Target{}, errors.NewClassification(rawURL, "shopee API URL needs item_id and shop_id")
		}
		return Target{Platform: platform.Shopee, ItemID: item[1], ShopID: shop[1], URL: rawURL}, nil

	case domain == "tiki.vn" && host == "tiki.vn":
		m := tikiRe.FindStringSubmatch(u.Path + "?" + u.RawQuery)
		if m == nil {
			return Target{}, errors.NewClassification(rawURL, "tiki URL needs p<id>.html and spid")
		}
		return Target{Platform: platform.Tiki, ItemID: m[1], ShopID: m[2], URL: rawURL}, nil

	case domain == "lazada.vn" && host == "www.lazada.vn" && strings.HasPrefix(u.Path, "/products/"):
		m := lazadaRe.FindStringSubmatch(u.Path)
		if m == nil {
			return Target{}, errors.NewClassification(rawURL, "lazada URL needs -i<id>-s<id>.html")
		}
		return Target{Platform: platform.Lazada, ItemID: m[1], ShopID: m[2], URL: rawURL}, nil
	}

	return Target{}, errors.NewClassification(rawURL, "unsupported URL")
}
