package tenantdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMetadataTTL bounds how long cached metadata lives in the external store.
const DefaultMetadataTTL = 8 * time.Hour

// Metadata describes a tenant's schema: its types and hooks.
type Metadata struct {
	Types []TypeDefinition `json:"types"`
	Hooks []Hook           `json:"hooks"`
}

// TypeDefinition is one user-defined type of a tenant.
type TypeDefinition struct {
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Interfaces []string          `json:"interfaces,omitempty"`
	Fields     []FieldDefinition `json:"fields,omitempty"`
}

// FieldDefinition is one field of a TypeDefinition.
type FieldDefinition struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NonNull bool   `json:"nonNull,omitempty"`
	Unique  bool   `json:"unique,omitempty"`
}

// Hook is a webhook fired on a mutation trigger.
type Hook struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Trigger string `json:"trigger"`
	URL     string `json:"url"`
}

// ComputeFunc produces the value of a ComputeCache entry on a miss.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// ComputeCache stores expensive results in an external CacheStore.
// Concurrent misses for one key share a single computation.
type ComputeCache[T any] struct {
	name    string
	store   CacheStore
	compute ComputeFunc[T]
	ttl     time.Duration
	degrade bool
	logger  *zap.Logger
	group   singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64 // bumped by Purge
}

// ComputeCacheOptions configures a ComputeCache.
type ComputeCacheOptions struct {
	TTL time.Duration
	// Degrade recomputes instead of failing when the store is unreachable.
	Degrade bool
	Logger  *zap.Logger
}

// NewComputeCache creates a cache named name over store.
func NewComputeCache[T any](name string, store CacheStore, compute ComputeFunc[T], opts ComputeCacheOptions) *ComputeCache[T] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	return &ComputeCache[T]{
		name:    name,
		store:   store,
		compute: compute,
		ttl:     ttl,
		degrade: opts.Degrade,
		logger:  logger.With(zap.String("cache", name)),

		generations: make(map[string]uint64),
	}
}

// Get returns the stored value for key, computing and storing it on a miss.
// A store failure is reported as a *CacheStoreError, never as a miss.
func (c *ComputeCache[T]) Get(ctx context.Context, key string) (T, error) {
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		c.logger.Debug("shared in-flight computation", zap.String("key", key))
	}
	return v.(T), nil
}

func (c *ComputeCache[T]) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}

func (c *ComputeCache[T]) load(ctx context.Context, key string) (T, error) {
	var zero T
	gen := c.generation(key)
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal([]byte(raw), &v)
		if uerr == nil {
			c.logger.Debug("cache hit", zap.String("key", key))
			return v, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(uerr))
	case errors.Is(err, ErrNotFound):
		c.logger.Debug("cache miss", zap.String("key", key))
	case c.degrade:
		c.logger.Warn("cache store unavailable, recomputing", zap.String("key", key), zap.Error(err))
		return c.compute(ctx)
	default:
		return zero, &CacheStoreError{Op: "get", Key: key, Err: err}
	}

	v, err := c.compute(ctx)
	if err != nil {
		return zero, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("%s: encode %q: %w", c.name, key, err)
	}
	if string(data) == "null" {
		return zero, fmt.Errorf("%w: %s computed nil for %q", ErrUnexpectedResult, c.name, key)
	}
	// Purge bumps the generation under mu before deleting, so a value stored
	// here is either current or removed by that purge.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != gen {
		c.logger.Debug("purged during computation, not storing", zap.String("key", key))
		return v, nil
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		if !c.degrade {
			return zero, &CacheStoreError{Op: "set", Key: key, Err: err}
		}
		c.logger.Warn("failed to store computed value", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// Purge removes key so the next Get recomputes. It is best effort: an
// unreachable store or a failed delete is logged and otherwise ignored.
func (c *ComputeCache[T]) Purge(ctx context.Context, key string) {
	c.mu.Lock()
	c.generations[key]++
	c.mu.Unlock()
	c.group.Forget(key)
	if !c.store.IsConnected(ctx) {
		c.logger.Debug("purge skipped, store not connected", zap.String("key", key))
		return
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("purge failed", zap.String("key", key), zap.Error(err))
	}
}
