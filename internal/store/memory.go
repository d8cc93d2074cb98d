package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

// MemoryStore keeps captures in process. Used by tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	captures map[platform.Platform][]capture.Capture
	reviews  map[string]capture.Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		captures: make(map[platform.Platform][]capture.Capture),
		reviews:  make(map[string]capture.Document),
	}
}

func (s *MemoryStore) Save(_ context.Context, c *capture.Capture) (string, error) {
	if c == nil || c.ItemID == "" {
		return "", errors.NewWrite("", "capture has no item id", nil)
	}
	cp := *c
	cp.Document = c.Document.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures[c.Platform] = append(s.captures[c.Platform], cp)
	return fmt.Sprintf("memory://%s/%s/%d", c.Platform, c.ItemID, len(s.captures[c.Platform])), nil
}

func (s *MemoryStore) DistinctIDs(_ context.Context, p platform.Platform) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	ids := []string{}
	for _, c := range s.captures[p] {
		if !seen[c.ItemID] {
			seen[c.ItemID] = true
			ids = append(ids, c.ItemID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Captures(_ context.Context, p platform.Platform, itemID string) ([]capture.Capture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []capture.Capture{}
	for _, c := range s.captures[p] {
		if matchesID(c, itemID) {
			cp := c
			cp.Document = c.Document.Clone()
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Review(_ context.Context, productID string) (capture.Document, error) {
	productID = capture.CanonicalID(productID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.reviews[productID]
	if !ok {
		return nil, errors.NewNotFound("", "no review for "+productID)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) SaveReview(_ context.Context, productID string, doc capture.Document) error {
	productID = capture.CanonicalID(productID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[productID] = doc.Clone()
	return nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }
