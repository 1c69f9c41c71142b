package tenantdb

import (
	"context"

	"github.com/burugo/tenantdb/common"
)

// Operations enumerates every operation a Client exposes.
type Operations interface {
	HasCapability(name string) bool
	IsValidID(typ string, id ID) bool
	GetByID(ctx context.Context, typ string, id ID) (Document, error)
	ClearCache()
	Close() error
	GetMetadata(ctx context.Context) (*Metadata, error)
	PurgeMetadata(ctx context.Context)
	Stats() Stats

	Invoke(ctx context.Context, name string, args ...interface{}) (interface{}, error)

	GetByIDBatch(ctx context.Context, typ string, ids []string) (map[string]Document, error)
	GetByField(ctx context.Context, typ, field string, value interface{}) (Document, error)
	GetAllByType(ctx context.Context, typ string, limit int) ([]Document, error)
	CountByType(ctx context.Context, typ string) (int, error)
	Create(ctx context.Context, typ string, doc Document) (Document, error)
	Replace(ctx context.Context, typ, id string, doc Document) (Document, error)
	Remove(ctx context.Context, typ, id string) (Document, error)
	FetchMetadataUncached(ctx context.Context) (*Metadata, error)
	CreateType(ctx context.Context, def TypeDefinition) (*TypeDefinition, error)
	CreateHook(ctx context.Context, hook Hook) (*Hook, error)
	CreateSecret(ctx context.Context) (string, error)
	GetSecrets(ctx context.Context) ([]string, error)
	CreateStorage(ctx context.Context) error
}

// GetByIDBatch fetches documents of typ by id in one call. Missing ids are
// absent from the result.
func (c *Client) GetByIDBatch(ctx context.Context, typ string, ids []string) (map[string]Document, error) {
	return invokeAs[map[string]Document](ctx, c, OpGetByIDBatch, typ, ids)
}

// GetByField returns the first document of typ whose field equals value.
func (c *Client) GetByField(ctx context.Context, typ, field string, value interface{}) (Document, error) {
	return invokeAs[Document](ctx, c, OpGetByField, typ, field, value)
}

// GetAllByType lists up to limit documents of typ; limit <= 0 lists all.
func (c *Client) GetAllByType(ctx context.Context, typ string, limit int) ([]Document, error) {
	return invokeAs[[]Document](ctx, c, OpGetAllByType, typ, limit)
}

// CountByType counts documents of typ.
func (c *Client) CountByType(ctx context.Context, typ string) (int, error) {
	return invokeAs[int](ctx, c, OpCountByType, typ)
}

func (c *Client) Create(ctx context.Context, typ string, doc Document) (Document, error) {
	out, err := invokeAs[Document](ctx, c, OpCreate, typ, doc)
	c.afterMutation(ctx, typ, err)
	return out, err
}

func (c *Client) Replace(ctx context.Context, typ, id string, doc Document) (Document, error) {
	out, err := invokeAs[Document](ctx, c, OpReplace, typ, id, doc)
	c.forget(typ, id, err)
	c.afterMutation(ctx, typ, err)
	return out, err
}

func (c *Client) Remove(ctx context.Context, typ, id string) (Document, error) {
	out, err := invokeAs[Document](ctx, c, OpRemove, typ, id)
	c.forget(typ, id, err)
	c.afterMutation(ctx, typ, err)
	return out, err
}

// FetchMetadataUncached reads the metadata straight from the database.
// GetMetadata is the cached path.
func (c *Client) FetchMetadataUncached(ctx context.Context) (*Metadata, error) {
	return invokeAs[*Metadata](ctx, c, OpGetMetadata)
}

func (c *Client) CreateType(ctx context.Context, def TypeDefinition) (*TypeDefinition, error) {
	out, err := invokeAs[*TypeDefinition](ctx, c, OpCreateType, def)
	c.afterMutation(ctx, common.TypeCollection, err)
	return out, err
}

func (c *Client) CreateHook(ctx context.Context, hook Hook) (*Hook, error) {
	out, err := invokeAs[*Hook](ctx, c, OpCreateHook, hook)
	c.afterMutation(ctx, common.HookCollection, err)
	return out, err
}

// CreateSecret generates, stores and returns a new application secret.
func (c *Client) CreateSecret(ctx context.Context) (string, error) {
	return invokeAs[string](ctx, c, OpCreateSecret)
}

func (c *Client) GetSecrets(ctx context.Context) ([]string, error) {
	return invokeAs[[]string](ctx, c, OpGetSecrets)
}

// CreateStorage ensures every system collection exists in the tenant database.
func (c *Client) CreateStorage(ctx context.Context) error {
	_, err := c.Invoke(ctx, OpCreateStorage)
	return err
}

// afterMutation purges metadata once a write to a schema collection succeeded.
func (c *Client) afterMutation(ctx context.Context, collection string, err error) {
	if err != nil {
		return
	}
	switch collection {
	case common.TypeCollection, common.HookCollection:
		c.PurgeMetadata(ctx)
	}
}

// forget drops a rewritten document from its type's loader.
func (c *Client) forget(typ, id string, err error) {
	if err != nil {
		return
	}
	c.mu.Lock()
	l, ok := c.loaders[typ]
	c.mu.Unlock()
	if ok {
		l.Clear(id)
	}
}
