package common

import "errors"

// ErrNotFound is returned when a requested item (e.g., cache key, document) is not found.
var ErrNotFound = errors.New("tenantdb: requested item not found")

// Additional package-level errors
var (
	ErrInvalidID        = errors.New("tenantdb: invalid ID format")
	ErrConnection       = errors.New("tenantdb: connection failed")
	ErrCacheStore       = errors.New("tenantdb: cache store unavailable")
	ErrUnknownOperation = errors.New("tenantdb: unknown operation")
	ErrUnexpectedResult = errors.New("tenantdb: unexpected operation result type")
	ErrClientClosed     = errors.New("tenantdb: client is closed")
	ErrRegistryClosed   = errors.New("tenantdb: connection registry is closed")
	ErrNilContext       = errors.New("tenantdb: nil context provided")
	ErrInvalidArgument  = errors.New("tenantdb: invalid operation argument")
)

// System collections every tenant database carries.
const (
	TypeCollection   = "ReindexType"
	HookCollection   = "ReindexHook"
	SecretCollection = "ReindexSecret"
)

// MetadataKeyPrefix prefixes the per-host metadata cache key.
const MetadataKeyPrefix = "reindex.cache.metadata."

// IDField is the document field holding the identifier.
const IDField = "id"
