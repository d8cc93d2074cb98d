package store

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

// FileStore writes captures to {base}/{platform}/{item_id}_{YYYY-MM-DD}.json. Two
// captures of one item on the same date share a path; the later one replaces the
// earlier.
type FileStore struct {
	base string
}

// NewFileStore creates a file sink rooted at base.
func NewFileStore(base string) *FileStore {
	return &FileStore{base: base}
}

// Path returns where c is written.
func (s *FileStore) Path(c *capture.Capture) string {
	return filepath.Join(s.base, c.Platform.Collection(), c.FileName())
}

func (s *FileStore) Save(_ context.Context, c *capture.Capture) (string, error) {
	if c == nil || c.ItemID == "" {
		return "", errors.NewWrite("", "capture has no item id", nil)
	}
	data, err := MarshalDocument(c.Document)
	if err != nil {
		return "", errors.NewWrite(c.Platform.String(), "encode capture", err)
	}
	path := s.Path(c)
	if err := writeFileAtomic(path, data); err != nil {
		return "", errors.NewWrite(c.Platform.String(), "write "+path, err)
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".capture-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// files lists the platform's capture files in name order.
func (s *FileStore) files(p platform.Platform) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, p.Collection()))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFault(p.String(), "list captures", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, filepath.Join(s.base, p.Collection(), e.Name()))
	}
	return names, nil
}

func (s *FileStore) read(p platform.Platform, path string) (capture.Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return capture.Capture{}, errors.NewStoreFault(p.String(), "read "+path, err)
	}
	doc, err := capture.DecodeJSON(data)
	if err != nil {
		return capture.Capture{}, errors.NewStoreFault(p.String(), "decode "+path, err)
	}
	c, err := capture.FromDocument(p, doc)
	if err != nil {
		return capture.Capture{}, errors.NewStoreFault(p.String(), "decode "+path, err)
	}
	return c, nil
}

func (s *FileStore) DistinctIDs(_ context.Context, p platform.Platform) ([]string, error) {
	paths, err := s.files(p)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	ids := []string{}
	for _, path := range paths {
		c, err := s.read(p, path)
		if err != nil {
			return nil, err
		}
		if !seen[c.ItemID] {
			seen[c.ItemID] = true
			ids = append(ids, c.ItemID)
		}
	}
	return ids, nil
}

func (s *FileStore) Captures(_ context.Context, p platform.Platform, itemID string) ([]capture.Capture, error) {
	paths, err := s.files(p)
	if err != nil {
		return nil, err
	}
	out := []capture.Capture{}
	for _, path := range paths {
		if !strings.HasPrefix(filepath.Base(path), itemID+"_") {
			continue
		}
		c, err := s.read(p, path)
		if err != nil {
			return nil, err
		}
		if matchesID(c, itemID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

func (s *FileStore) reviewPath(productID string) string {
	return filepath.Join(s.base, ReviewCollection, filepath.Base(productID)+".json")
}

func (s *FileStore) Review(_ context.Context, productID string) (capture.Document, error) {
	productID = capture.CanonicalID(productID)
	data, err := os.ReadFile(s.reviewPath(productID))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewNotFound("", "no review for "+productID)
	}
	if err != nil {
		return nil, errors.NewStoreFault("", "read review", err)
	}
	doc, err := capture.DecodeJSON(data)
	if err != nil {
		return nil, errors.NewStoreFault("", "decode review", err)
	}
	return doc, nil
}

func (s *FileStore) SaveReview(_ context.Context, productID string, doc capture.Document) error {
	productID = capture.CanonicalID(productID)
	data, err := MarshalDocument(doc)
	if err != nil {
		return errors.NewWrite("", "encode review", err)
	}
	if err := writeFileAtomic(s.reviewPath(productID), data); err != nil {
		return errors.NewWrite("", "write review", err)
	}
	return nil
}

func (s *FileStore) Close(context.Context) error { return nil }
