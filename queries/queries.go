// Package queries holds the operation tables a tenantdb.Client dispatches to.
//
// Every operation receives the tenant Database and positional arguments;
// argument types are checked at dispatch and reported as
// tenantdb.ErrInvalidArgument.
package queries

import (
	"fmt"

	"github.com/burugo/tenantdb"
)

// Default returns the complete table: simple reads, mutations and app administration.
func Default() tenantdb.QueryTable {
	return Merge(Simple(), Mutation(), App())
}

// Merge composes tables. Later tables win on name conflicts.
func Merge(tables ...tenantdb.QueryTable) tenantdb.QueryTable {
	return tenantdb.MergeQueryTables(tables...)
}

// arg returns args[i] as a T.
func arg[T any](op string, args []interface{}, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("%w: %s: missing argument %d", tenantdb.ErrInvalidArgument, op, i)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: argument %d is %T, want %T", tenantdb.ErrInvalidArgument, op, i, args[i], zero)
	}
	return v, nil
}

// optionalArg returns args[i] as a T, or def when absent or nil.
func optionalArg[T any](op string, args []interface{}, i int, def T) (T, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	return arg[T](op, args, i)
}

func requireType(op, typ string) error {
	if typ == "" {
		return fmt.Errorf("%w: %s: empty type", tenantdb.ErrInvalidArgument, op)
	}
	return nil
}
