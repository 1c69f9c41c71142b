package tenantdb

import (
	"fmt"

	"github.com/burugo/tenantdb/common"
)

// Re-exported sentinel errors; see package common.
var (
	ErrNotFound         = common.ErrNotFound
	ErrInvalidID        = common.ErrInvalidID
	ErrConnection       = common.ErrConnection
	ErrCacheStore       = common.ErrCacheStore
	ErrUnknownOperation = common.ErrUnknownOperation
	ErrUnexpectedResult = common.ErrUnexpectedResult
	ErrClientClosed     = common.ErrClientClosed
	ErrRegistryClosed   = common.ErrRegistryClosed
	ErrNilContext       = common.ErrNilContext
	ErrInvalidArgument  = common.ErrInvalidArgument
)

// IDField is the document field holding the identifier.
const IDField = common.IDField

// ValidationError reports a malformed identifier. It is raised before any I/O.
type ValidationError struct {
	Type  string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid ID for type %s: %q", ErrInvalidID.Error(), e.Type, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidID }

// ConnectionError reports a failed connection establishment. Every caller
// waiting on the same connection key receives the same ConnectionError.
type ConnectionError struct {
	Key string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConnection.Error(), redactConnString(e.Key), e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// CacheStoreError reports an unreachable or failing external cache store.
// It is distinct from a cache miss, which is reported as ErrNotFound.
type CacheStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheStoreError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", ErrCacheStore.Error(), e.Op, e.Key, e.Err)
}

func (e *CacheStoreError) Unwrap() []error { return []error{ErrCacheStore, e.Err} }
