package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/burugo/tenantdb/common"
	"github.com/burugo/tenantdb/internal/loader"
)

// Capability names reported by HasCapability.
const (
	CapabilityManyToMany = "manyToMany"
)

var capabilities = map[string]bool{
	CapabilityManyToMany: true,
}

// Options is the connection configuration of a Client.
type Options struct {
	// ConnectionString may carry driver options as a query string.
	ConnectionString string
	// Queries is the operation table the Client dispatches to.
	Queries QueryTable
	// Cache backs the metadata cache. Must be non-nil.
	Cache CacheStore
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithLogger sets the Client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the Metrics facade that times every operation.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLoaderWait sets the batch window of the per-type loaders.
func WithLoaderWait(d time.Duration) Option {
	return func(c *Client) { c.loaderWait = d }
}

// WithLoaderMaxBatch caps the number of ids per bulk fetch.
func WithLoaderMaxBatch(n int) Option {
	return func(c *Client) { c.loaderMaxBatch = n }
}

// WithMetadataTTL sets how long metadata stays in the cache store.
func WithMetadataTTL(d time.Duration) Option {
	return func(c *Client) { c.metadataTTL = d }
}

// WithDegradedMetadataCache recomputes metadata instead of failing when the cache store is unreachable.
func WithDegradedMetadataCache() Option {
	return func(c *Client) { c.degradeMetadata = true }
}

// Client is the data-access facade for one tenant (hostname + database).
// It shares its connection with every Client built on the same connection
// string; everything else it owns exclusively.
type Client struct {
	hostname   string
	dbName     string
	connString string
	registry   *Registry
	queries    QueryTable

	metrics         Metrics
	logger          *zap.Logger
	loaderWait      time.Duration
	loaderMaxBatch  int
	metadataTTL     time.Duration
	degradeMetadata bool

	stats    *statsRecorder
	metadata *ComputeCache[*Metadata]

	mu      sync.Mutex
	pending *PendingConn
	db      Database
	conn    Conn
	loaders map[string]*loader.Loader[string, Document]
	closed  bool
}

var _ Operations = (*Client)(nil)

// New creates a Client for hostname and dbName. It begins establishing the
// shared connection through registry without waiting for it.
func New(registry *Registry, hostname, dbName string, opts Options, setters ...Option) (*Client, error) {
	if registry == nil {
		return nil, errors.New("tenantdb: registry must be non-nil")
	}
	if opts.Cache == nil {
		return nil, errors.New("tenantdb: cache store must be non-nil")
	}
	if opts.ConnectionString == "" {
		return nil, errors.New("tenantdb: connection string must be set")
	}
	for _, name := range requiredOperations {
		if _, ok := opts.Queries[name]; !ok {
			return nil, fmt.Errorf("%w: query table lacks %s", ErrUnknownOperation, name)
		}
	}

	c := &Client{
		hostname:   hostname,
		dbName:     dbName,
		connString: opts.ConnectionString,
		registry:   registry,
		queries:    opts.Queries,
		metrics:    NopMetrics{},
		logger:     zap.NewNop(),
		stats:      newStatsRecorder(),
		loaders:    make(map[string]*loader.Loader[string, Document]),
	}
	for _, set := range setters {
		set(c)
	}
	c.logger = c.logger.With(zap.String("hostname", hostname), zap.String("db", dbName))
	c.metadata = NewComputeCache[*Metadata]("MetadataCache", opts.Cache, c.FetchMetadataUncached, ComputeCacheOptions{
		TTL:     c.metadataTTL,
		Degrade: c.degradeMetadata,
		Logger:  c.logger,
	})

	pending, err := registry.Connect(c.connString)
	if err != nil {
		return nil, err
	}
	c.pending = pending
	return c, nil
}

// Hostname returns the tenant hostname the Client tags metrics with.
func (c *Client) Hostname() string { return c.hostname }

// DBName returns the tenant database name.
func (c *Client) DBName() string { return c.dbName }

// HasCapability reports whether the Client supports the named optional feature.
func HasCapability(name string) bool { return capabilities[name] }

// HasCapability reports whether the Client supports the named optional feature.
func (c *Client) HasCapability(name string) bool { return HasCapability(name) }

// IsValidID reports whether id is a well-formed identifier of typ.
func (c *Client) IsValidID(typ string, id ID) bool { return IsValidID(typ, id) }

// GetByID loads one document through the per-type batch loader. Invalid ids
// fail with a *ValidationError before reaching the loader.
func (c *Client) GetByID(ctx context.Context, typ string, id ID) (Document, error) {
	if !c.IsValidID(typ, id) {
		return nil, &ValidationError{Type: typ, Value: id.Value}
	}
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return c.loaderFor(typ).Load(ctx, id.Value)
}

func (c *Client) loaderFor(typ string) *loader.Loader[string, Document] {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.loaders[typ]
	if !ok {
		l = loader.New(loader.Config[string, Document]{
			Fetch: func(ctx context.Context, ids []string) (map[string]Document, error) {
				c.logger.Debug("flushing id batch", zap.String("type", typ), zap.Int("ids", len(ids)))
				return c.GetByIDBatch(ctx, typ, ids)
			},
			Wait:     c.loaderWait,
			MaxBatch: c.loaderMaxBatch,
		})
		c.loaders[typ] = l
	}
	return l
}

// ClearCache drops every cached lookup of every type.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.loaders {
		l.ClearAll()
	}
}

// GetMetadata returns the tenant metadata, from the cache store when present.
func (c *Client) GetMetadata(ctx context.Context) (*Metadata, error) {
	return c.metadata.Get(ctx, c.metadataKey())
}

// PurgeMetadata removes the cached metadata. It never fails.
func (c *Client) PurgeMetadata(ctx context.Context) {
	c.metadata.Purge(ctx, c.metadataKey())
}

func (c *Client) metadataKey() string {
	return common.MetadataKeyPrefix + c.hostname
}

// Stats returns a snapshot of the operation statistics.
func (c *Client) Stats() Stats { return c.stats.snapshot() }

// Close releases the Client. The shared connection stays open for other
// Clients; the Registry owns its lifetime.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, l := range c.loaders {
		l.ClearAll()
	}
	c.db, c.conn, c.pending = nil, nil, nil
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// database resolves the Client's database handle, deriving it from the shared
// connection on first use. A failed or terminated connection is requested
// from the registry again.
func (c *Client) database(ctx context.Context) (Database, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if c.db != nil && !connTerminated(c.conn) {
		db := c.db
		c.mu.Unlock()
		return db, nil
	}
	if c.pending == nil || c.db != nil {
		p, err := c.registry.Connect(c.connString)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.pending, c.db, c.conn = p, nil, nil
	}
	p := c.pending
	c.mu.Unlock()

	conn, err := p.Wait(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) && c.pending == p {
			c.pending = nil
		}
		return nil, err
	}
	if c.pending != p {
		return conn.DB(c.dbName), nil
	}
	if c.db == nil {
		c.conn = conn
		c.db = conn.DB(c.dbName)
	}
	return c.db, nil
}
