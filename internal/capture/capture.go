package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/datashop/datashop/internal/platform"
)

// TimestampField is the document key every capture carries with its capture time.
const TimestampField = "scraped_timestamp"

// ResponseBodyField holds the marketplace payload inside a proxy envelope.
const ResponseBodyField = "responseBody"

// Capture is one timestamped snapshot of a marketplace response for a single item.
// Captures are append-only; identity is (Platform, ItemID, CapturedAt).
type Capture struct {
	Platform   platform.Platform
	ItemID     string
	ShopID     string
	CapturedAt time.Time
	Document   Document
	// Status is the HTTP status of the remote call that produced the document.
	Status int
}

// New builds a capture and stamps the document with the capture time.
func New(p platform.Platform, itemID, shopID string, doc Document, at time.Time) *Capture {
	if doc == nil {
		doc = Document{}
	}
	doc[TimestampField] = FormatTimestamp(at)
	return &Capture{
		Platform:   p,
		ItemID:     itemID,
		ShopID:     shopID,
		CapturedAt: at,
		Document:   doc,
	}
}

// FromDocument rebuilds a capture from a stored document. The item id is read from
// the platform's id path and the capture time from scraped_timestamp.
func FromDocument(p platform.Platform, doc Document) (Capture, error) {
	c := Capture{Platform: p, Document: doc}
	c.ItemID = doc.String(p.IDPath())
	if c.ItemID == "" {
		return c, fmt.Errorf("%s document has no %s", p, p.IDPath())
	}
	if ts := doc.String(TimestampField); ts != "" {
		at, err := ParseTimestamp(ts)
		if err != nil {
			return c, err
		}
		c.CapturedAt = at
	}
	return c, nil
}

// Payload returns the marketplace payload: responseBody for proxy platforms, the
// whole document for Tiki.
func (c Capture) Payload() Document {
	switch c.Platform {
	case platform.Shopee, platform.Lazada:
		body, _ := c.Document.Object(ResponseBodyField)
		return body
	case platform.Tiki:
		return c.Document
	default:
		panic(fmt.Sprintf("Payload: unknown platform %d", int(c.Platform)))
	}
}

// Date is the capture date, YYYY-MM-DD, taken from the timestamp as written.
func (c Capture) Date() string {
	if ts := c.Document.String(TimestampField); ts != "" {
		if d, ok := DatePart(ts); ok {
			return d
		}
	}
	if c.CapturedAt.IsZero() {
		return ""
	}
	return c.CapturedAt.Format(time.DateOnly)
}

// FileName is the file-sink name of this capture: {item_id}_{YYYY-MM-DD}.json.
func (c Capture) FileName() string {
	return fmt.Sprintf("%s_%s.json", c.ItemID, c.Date())
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.DateTime,
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// FormatTimestamp writes capture times the way stored documents carry them.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp accepts RFC 3339 and the naive ISO forms found in older captures
// ("2024-05-01T10:00:00.123456", "2024-05-01 10:00:00"). Naive values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DatePart extracts YYYY-MM-DD from a stored timestamp without shifting its zone, so
// the date is the one the capturing process saw.
func DatePart(ts string) (string, bool) {
	ts = strings.TrimSpace(ts)
	if len(ts) < len(time.DateOnly) {
		return "", false
	}
	d := ts[:len(time.DateOnly)]
	if _, err := time.Parse(time.DateOnly, d); err != nil {
		return "", false
	}
	return d, true
}
