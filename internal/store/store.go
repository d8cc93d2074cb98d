// Package store persists raw captures and serves them back to the query layer. Every
// backend keeps one partition per platform plus a separate review partition.
package store

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/platform"
)

// ReviewCollection is the partition holding Shopee and Tiki review documents.
const ReviewCollection = "review"

// Writer persists captures. A failed Save affects that capture only.
type Writer interface {
	Save(ctx context.Context, c *capture.Capture) (location string, err error)
}

// Reader serves stored captures. Zero matches are an empty slice, or ErrNotFound for
// Review; anything the backend cannot answer is a store fault.
type Reader interface {
	DistinctIDs(ctx context.Context, p platform.Platform) ([]string, error)
	// Captures returns every capture of one item, oldest first.
	Captures(ctx context.Context, p platform.Platform, itemID string) ([]capture.Capture, error)
	Review(ctx context.Context, productID string) (capture.Document, error)
}

// ReviewWriter stores a review document under its string product id.
type ReviewWriter interface {
	SaveReview(ctx context.Context, productID string, doc capture.Document) error
}

// Store is a complete backend.
type Store interface {
	Writer
	Reader
	ReviewWriter
	Close(ctx context.Context) error
}

// MarshalDocument encodes a document as UTF-8 JSON with 4-space indentation, keeping
// non-ASCII and HTML characters as they are.
func MarshalDocument(doc capture.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// matchesID compares ids in canonical form, so a numeric id matches with or without
// leading zeros on every backend.
func matchesID(c capture.Capture, itemID string) bool {
	return capture.CanonicalID(c.ItemID) == capture.CanonicalID(itemID)
}
