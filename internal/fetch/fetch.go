// Package fetch captures one item from its marketplace: Tiki through its storefront
// API, Shopee and Lazada through the scraping proxy.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/classify"
	"github.com/datashop/datashop/internal/httputil"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/platform"
)

// Fetcher performs one remote capture. Implementations derive the item id from the
// response, never from the input URL.
type Fetcher interface {
	Platform() platform.Platform
	Fetch(ctx context.Context, target classify.Target) (*capture.Capture, error)
}

// Options configure a fetcher. Zero values fall back to defaults.
type Options struct {
	Client  *http.Client
	BaseURL string
	Token   string
	Retry   httputil.RetryPolicy
	Now     func() time.Time
	Logger  *logger.Logger
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return httputil.NewHTTPClient(nil, httputil.DefaultTimeout)
}

func (o Options) logger(p platform.Platform) *logger.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.ForPlatform(p.String())
}

func (o Options) now() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// Registry maps each platform onto its fetcher.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[platform.Platform]Fetcher
}

// NewRegistry creates a registry holding the given fetchers.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[platform.Platform]Fetcher)}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds or replaces the fetcher for f.Platform().
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Platform()] = f
}

// Get retrieves the fetcher for p.
func (r *Registry) Get(p platform.Platform) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[p]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for %s", p)
	}
	return f, nil
}

// Platforms lists registered platforms.
func (r *Registry) Platforms() []platform.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]platform.Platform, 0, len(r.fetchers))
	for p := range r.fetchers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
