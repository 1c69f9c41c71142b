package queries

import (
	"context"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

// Mutation returns the write operations over user types.
func Mutation() tenantdb.QueryTable {
	return tenantdb.QueryTable{
		tenantdb.OpCreate:  create,
		tenantdb.OpReplace: replace,
		tenantdb.OpRemove:  remove,
	}
}

// create(type string, doc Document) Document
func create(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpCreate, args, 0)
	if err != nil {
		return nil, err
	}
	doc, err := arg[tenantdb.Document](tenantdb.OpCreate, args, 1)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpCreate, typ); err != nil {
		return nil, err
	}
	id, err := db.Insert(ctx, typ, doc)
	if err != nil {
		return nil, err
	}
	return withID(doc, id), nil
}

// replace(type, id string, doc Document) Document
func replace(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpReplace, args, 0)
	if err != nil {
		return nil, err
	}
	id, err := arg[string](tenantdb.OpReplace, args, 1)
	if err != nil {
		return nil, err
	}
	doc, err := arg[tenantdb.Document](tenantdb.OpReplace, args, 2)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpReplace, typ); err != nil {
		return nil, err
	}
	if err := db.Replace(ctx, typ, id, doc); err != nil {
		return nil, err
	}
	return withID(doc, id), nil
}

// remove(type, id string) Document returns the removed document.
func remove(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpRemove, args, 0)
	if err != nil {
		return nil, err
	}
	id, err := arg[string](tenantdb.OpRemove, args, 1)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpRemove, typ); err != nil {
		return nil, err
	}
	docs, err := db.FindByIDs(ctx, typ, []string{id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.ErrNotFound
	}
	if err := db.Remove(ctx, typ, id); err != nil {
		return nil, err
	}
	return docs[0], nil
}

// withID returns a copy of doc carrying id.
func withID(doc tenantdb.Document, id string) tenantdb.Document {
	out := make(tenantdb.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[common.IDField] = id
	return out
}
