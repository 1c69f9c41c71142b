// interfaces.go
// Core interfaces for tenantdb: Driver, Conn, Database, CacheStore, Metrics.
// These are public and intended for use by callers and driver developers.

package tenantdb

import (
	"context"
	"time"
)

// Document is a single stored entity. The identifier lives under IDField.
type Document map[string]interface{}

// ID returns the document identifier, or "" when absent.
func (d Document) ID() string {
	if d == nil {
		return ""
	}
	id, _ := d[IDField].(string)
	return id
}

// Driver establishes connections to the underlying database cluster.
type Driver interface {
	// Connect dials the cluster using the canonical connection string.
	Connect(ctx context.Context, connString string) (Conn, error)
	Name() string
}

// Conn is a live, shareable connection to a database cluster.
type Conn interface {
	// DB selects a database on the connection. It performs no I/O.
	DB(name string) Database
	// Done is closed once the connection has terminated.
	Done() <-chan struct{}
	Close() error
}

// Database is a handle to one tenant database on a connection.
type Database interface {
	Name() string
	FindByIDs(ctx context.Context, collection string, ids []string) ([]Document, error)
	Find(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]Document, error)
	Count(ctx context.Context, collection string, filter map[string]interface{}) (int, error)
	// Insert stores doc and returns its identifier, generating one when doc has none.
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	Replace(ctx context.Context, collection, id string, doc Document) error
	Remove(ctx context.Context, collection, id string) error
	EnsureCollection(ctx context.Context, collection string) error
}

// CacheStore is the external keyed store behind the metadata cache.
type CacheStore interface {
	// Get returns ErrNotFound on a miss and any other error when the store is unreachable.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	IsConnected(ctx context.Context) bool

	GetCacheStats(ctx context.Context) CacheStats
}

// CacheStats holds cache operation counters for monitoring.
type CacheStats struct {
	Counters map[string]int // Operation name to count
}

// Metrics times a named unit of work, tagged with a host identifier.
// onComplete, when non-nil, is called with the elapsed time only if work succeeds.
type Metrics interface {
	Timing(ctx context.Context, name, host string, work func(ctx context.Context) error, onComplete func(elapsed time.Duration)) error
}
