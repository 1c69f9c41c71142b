package tenantdb

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// QueryFunc is a named database operation registered into a Client.
type QueryFunc func(ctx context.Context, db Database, args ...interface{}) (interface{}, error)

// QueryTable maps operation names to their functions.
type QueryTable map[string]QueryFunc

// MergeQueryTables combines tables into a new one. Later tables win on name conflicts.
func MergeQueryTables(tables ...QueryTable) QueryTable {
	out := make(QueryTable)
	for _, t := range tables {
		for name, q := range t {
			out[name] = q
		}
	}
	return out
}

// Names of the operations a Client relies on.
const (
	OpGetByIDBatch  = "getByIDBatch"
	OpGetByField    = "getByField"
	OpGetAllByType  = "getAllByType"
	OpCountByType   = "countByType"
	OpCreate        = "create"
	OpReplace       = "replace"
	OpRemove        = "remove"
	OpGetMetadata   = "getMetadata"
	OpCreateType    = "createType"
	OpCreateHook    = "createHook"
	OpCreateSecret  = "createSecret"
	OpGetSecrets    = "getSecrets"
	OpCreateStorage = "createStorage"
)

// requiredOperations must be present in every Client's query table.
var requiredOperations = []string{OpGetByIDBatch, OpGetMetadata}

// Invoke runs the named operation against the Client's database.
//
// Resolving the database handle is timed as MetricConnectionTime and the
// operation itself as MetricQueryPrefix+name, both tagged with the hostname.
// On success the Stats totals and the operation's bucket are updated once the
// operation completes. Once dispatched, the operation runs to completion
// regardless of ctx cancellation.
func (c *Client) Invoke(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	query, ok := c.queries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}

	var db Database
	err := c.metrics.Timing(ctx, MetricConnectionTime, c.hostname, func(ctx context.Context) error {
		var err error
		db, err = c.database(ctx)
		return err
	}, nil)
	if err != nil {
		return nil, err
	}

	var result interface{}
	err = c.metrics.Timing(context.WithoutCancel(ctx), MetricQueryPrefix+name, c.hostname, func(ctx context.Context) error {
		var err error
		result, err = query(ctx, db, args...)
		return err
	}, func(elapsed time.Duration) {
		c.stats.recordSuccess(name, elapsed)
	})
	if err != nil {
		c.stats.recordFailure(name)
		c.logger.Debug("operation failed", zap.String("operation", name), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// invokeAs runs an operation and asserts its result type.
func invokeAs[T any](ctx context.Context, c *Client, name string, args ...interface{}) (T, error) {
	var zero T
	res, err := c.Invoke(ctx, name, args...)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrUnexpectedResult, name, res, zero)
	}
	return v, nil
}
