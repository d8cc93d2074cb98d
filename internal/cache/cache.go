package cache

import (
	stderrors "errors"
	"time"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/platform"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = stderrors.New("cache: miss")

// Cache is a byte cache with per-entry expiry.
type Cache interface {
	// Get retrieves a value, or ErrMiss
	Get(key string) ([]byte, error)

	// Set stores a value with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value; deleting an absent key is not an error
	Delete(key string) error
}

// HistoryKey is the key of an item's cached price history. Numeric ids are keyed in
// their canonical form so "0123" and "123" share an entry.
func HistoryKey(p platform.Platform, itemID string) string {
	return "history:" + p.String() + ":" + capture.CanonicalID(itemID)
}
