package normalize

import (
	"fmt"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/platform"
)

// Detail builds the flattened detail document of a capture. Keys already present at
// the document root always win over keys lifted from the nested payload.
func Detail(c capture.Capture) (capture.Document, error) {
	doc := c.Document.Clone()
	switch c.Platform {
	case platform.Lazada:
		body, _ := doc.Object(capture.ResponseBodyField)
		delete(doc, capture.ResponseBodyField)
		lift(doc, body)
		return doc, nil
	case platform.Shopee:
		item, _ := doc.Object(capture.ResponseBodyField + "." + shopeeItemPath)
		delete(doc, capture.ResponseBodyField)
		if price, ok := ShopeePrice(item["price"]); ok {
			item["price"] = price
		}
		lift(doc, item)
		return doc, nil
	case platform.Tiki:
		return doc, nil
	default:
		return nil, fmt.Errorf("detail: unknown platform %d", int(c.Platform))
	}
}

func lift(dst, src capture.Document) {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}
