package tenantdb

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultConnectTimeout = 10 * time.Second

// Registry shares one connection per distinct connection string across every
// Client in the process. Create it once at startup and Close it at shutdown.
//
// The raw connection string is the key. The entry is stored before the
// connection is established, so concurrent callers wait on the same attempt.
// An entry is cleared when its connection terminates or fails to establish,
// and the next request for that key dials again.
type Registry struct {
	driver         Driver
	logger         *zap.Logger
	connectTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*connEntry
	closed  bool
	wg      sync.WaitGroup // establishment and termination watchers
}

type connEntry struct {
	key  string
	done chan struct{} // closed once conn or err is set
	conn Conn
	err  error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConnectTimeout bounds each establishment attempt.
func WithConnectTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.connectTimeout = d
		}
	}
}

// NewRegistry creates a connection registry dialing through driver.
func NewRegistry(driver Driver, opts ...RegistryOption) *Registry {
	r := &Registry{
		driver:         driver,
		logger:         zap.NewNop(),
		connectTimeout: defaultConnectTimeout,
		entries:        make(map[string]*connEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("driver", driver.Name()))
	return r
}

// PendingConn is a shared connection that may still be establishing.
type PendingConn struct {
	entry *connEntry
}

// terminated reports whether the entry holds a connection that has already ended.
func (e *connEntry) terminated() bool {
	select {
	case <-e.done:
	default:
		return false
	}
	return e.conn != nil && connTerminated(e.conn)
}

func connTerminated(conn Conn) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}

// Wait blocks until the connection is established or has failed. Abandoning
// the wait through ctx does not cancel the establishment.
func (p *PendingConn) Wait(ctx context.Context) (Conn, error) {
	select {
	case <-p.entry.done:
		return p.entry.conn, p.entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Key returns the registry key of the connection.
func (p *PendingConn) Key() string { return p.entry.key }

// Connect returns the in-flight or established connection for connString,
// starting an establishment attempt when none exists. It never blocks on I/O.
func (r *Registry) Connect(connString string) (*PendingConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if e, ok := r.entries[connString]; ok && !e.terminated() {
		return &PendingConn{entry: e}, nil
	}
	e := &connEntry{key: connString, done: make(chan struct{})}
	r.entries[connString] = e
	r.wg.Add(1)
	go r.establish(e)
	return &PendingConn{entry: e}, nil
}

// Acquire returns the shared connection for connString, waiting for it to be established.
func (r *Registry) Acquire(ctx context.Context, connString string) (Conn, error) {
	p, err := r.Connect(connString)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Len returns the number of registered (in-flight or established) connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) establish(e *connEntry) {
	defer r.wg.Done()
	logger := r.logger.With(zap.String("conn", redactConnString(e.key)))

	conn, err := r.dial(e.key)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		e.err = &ConnectionError{Key: e.key, Err: err}
		r.removeLocked(e)
		logger.Warn("connection failed, entry cleared for retry", zap.Error(err))
	case r.closed:
		_ = conn.Close()
		e.err = &ConnectionError{Key: e.key, Err: ErrRegistryClosed}
	default:
		e.conn = conn
		r.wg.Add(1)
		go r.watch(e, logger)
		logger.Info("connection established")
	}
	close(e.done)
}

func (r *Registry) dial(connString string) (Conn, error) {
	canonical, err := CanonicalConnString(connString)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
	defer cancel()
	return r.driver.Connect(ctx, canonical)
}

// watch clears the entry once its connection terminates.
func (r *Registry) watch(e *connEntry, logger *zap.Logger) {
	defer r.wg.Done()
	<-e.conn.Done()
	r.mu.Lock()
	r.removeLocked(e)
	r.mu.Unlock()
	logger.Info("connection terminated, entry cleared")
}

func (r *Registry) removeLocked(e *connEntry) {
	if cur, ok := r.entries[e.key]; ok && cur == e {
		delete(r.entries, e.key)
	}
}

// Close tears down every shared connection. Connections still establishing
// are closed as soon as they complete.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var conns []Conn
	for _, e := range r.entries {
		select {
		case <-e.done:
			if e.conn != nil {
				conns = append(conns, e.conn)
			}
		default:
		}
	}
	r.entries = make(map[string]*connEntry)
	r.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.wg.Wait()
	r.logger.Info("connection registry closed", zap.Int("connections", len(conns)))
	return errors.Join(errs...)
}
