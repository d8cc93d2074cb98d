package cache

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

// MemcacheCache implements Cache on memcached.
type MemcacheCache struct {
	client memcacheClient
	prefix string
}

// NewMemcacheCache connects to one or more comma separated memcached servers. Keys
// are namespaced with prefix.
func NewMemcacheCache(servers, prefix string) *MemcacheCache {
	var addrs []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			addrs = append(addrs, s)
		}
	}
	client := memcache.New(addrs...)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheCache{client: client, prefix: prefix}
}

// Get retrieves a value from memcache
func (m *MemcacheCache) Get(key string) ([]byte, error) {
	item, err := m.client.Get(m.prefix + key)
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheCache) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        m.prefix + key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

// Delete removes a value from memcache
func (m *MemcacheCache) Delete(key string) error {
	err := m.client.Delete(m.prefix + key)
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
