// Package local provides an in-process tenantdb.CacheStore.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// Store implements tenantdb.CacheStore using an in-memory sync.Map.
// It is always connected.
type Store struct {
	store      sync.Map // map[string]entry
	countersMu sync.Mutex
	counters   map[string]int
	now        func() time.Time
}

var _ tenantdb.CacheStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{counters: make(map[string]int), now: time.Now}
}

func (s *Store) incrCounter(name string) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters[name]++
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.incrCounter("Get")
	if v, ok := s.store.Load(key); ok {
		e := v.(entry)
		if e.expires.IsZero() || s.now().Before(e.expires) {
			s.incrCounter("GetHit")
			return e.value, nil
		}
		s.store.CompareAndDelete(key, v)
	}
	s.incrCounter("GetMiss")
	return "", common.ErrNotFound
}

func (s *Store) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	s.incrCounter("Set")
	e := entry{value: value}
	if expiration > 0 {
		e.expires = s.now().Add(expiration)
	}
	s.store.Store(key, e)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.incrCounter("Delete")
	s.store.Delete(key)
	return nil
}

func (s *Store) IsConnected(ctx context.Context) bool { return true }

// GetCacheStats returns a copy of the operation counters.
func (s *Store) GetCacheStats(ctx context.Context) tenantdb.CacheStats {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	stats := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		stats[k] = v
	}
	return tenantdb.CacheStats{Counters: stats}
}
