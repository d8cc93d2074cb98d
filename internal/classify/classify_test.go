package classify

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Target
	}{
		{
			name: "shopee hot sales api",
			url:  "https://shopee.vn/api/v4/pdp/hot_sales/get?item_id=22349612345&limit=8&offset=0&shop_id=88201679",
			want: Target{Platform: platform.Shopee, ItemID: "22349612345", ShopID: "88201679"},
		},
		{
			name: "shopee shop id first",
			url:  "https://shopee.vn/api/v4/pdp/get_pc?shop_id=1&item_id=2",
			want: Target{Platform: platform.Shopee, ItemID: "2", ShopID: "1"},
		},
		{
			name: "tiki product page",
			url:  "https://tiki.vn/binh-giu-nhiet-p274866237.html?spid=274866238",
			want: Target{Platform: platform.Tiki, ItemID: "274866237", ShopID: "274866238"},
		},
		{
			name: "tiki with tracking params",
			url:  "https://tiki.vn/sach-p12345.html?itm_campaign=x&spid=678",
			want: Target{Platform: platform.Tiki, ItemID: "12345", ShopID: "678"},
		},
		{
			name: "lazada product page",
			url:  "https://www.lazada.vn/products/ao-thun-nam-i2406455047-s11722456911.html?spm=a2o4n",
			want: Target{Platform: platform.Lazada, ItemID: "2406455047", ShopID: "11722456911"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.url)
			require.NoError(t, err)
			tt.want.URL = tt.url
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyFailsClosed(t *testing.T) {
	for _, raw := range []string{
		"",
		"not a url",
		"http://tiki.vn/x-p1.html?spid=2",
		"https://shopee.vn/api/v4/pdp/hot_sales/get?item_id=1",
		"https://shopee.vn/api/v4/pdp/hot_sales/get?shop_id=1",
		"https://shopee.vn/api/v4/pdp/hot_sales/get?item_id=abc&shop_id=1",
		"https://shopee.vn/product-name.123.456",
		"https://tiki.vn/x-p1.html",
		"https://www.lazada.vn/products/no-ids.html",
		"https://www.lazada.co.th/products/x-i1-s2.html",
		"https://example.com/x-i1-s2.html",
	} {
		_, err := Classify(raw)
		require.Error(t, err, raw)
		assert.True(t, stderrors.Is(err, errors.ErrClassification), raw)
	}
}
