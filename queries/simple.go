package queries

import (
	"context"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

// Simple returns the read operations over user types.
func Simple() tenantdb.QueryTable {
	return tenantdb.QueryTable{
		tenantdb.OpGetByIDBatch: getByIDBatch,
		tenantdb.OpGetByField:   getByField,
		tenantdb.OpGetAllByType: getAllByType,
		tenantdb.OpCountByType:  countByType,
	}
}

// getByIDBatch(type string, ids []string) map[string]Document
func getByIDBatch(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpGetByIDBatch, args, 0)
	if err != nil {
		return nil, err
	}
	ids, err := arg[[]string](tenantdb.OpGetByIDBatch, args, 1)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpGetByIDBatch, typ); err != nil {
		return nil, err
	}
	docs, err := db.FindByIDs(ctx, typ, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]tenantdb.Document, len(docs))
	for _, d := range docs {
		out[d.ID()] = d
	}
	return out, nil
}

// getByField(type, field string, value any) Document
func getByField(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpGetByField, args, 0)
	if err != nil {
		return nil, err
	}
	field, err := arg[string](tenantdb.OpGetByField, args, 1)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpGetByField, typ); err != nil {
		return nil, err
	}
	var value interface{}
	if len(args) > 2 {
		value = args[2]
	}
	docs, err := db.Find(ctx, typ, map[string]interface{}{field: value}, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.ErrNotFound
	}
	return docs[0], nil
}

// getAllByType(type string, limit int) []Document
func getAllByType(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpGetAllByType, args, 0)
	if err != nil {
		return nil, err
	}
	limit, err := optionalArg(tenantdb.OpGetAllByType, args, 1, 0)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpGetAllByType, typ); err != nil {
		return nil, err
	}
	return db.Find(ctx, typ, nil, limit)
}

// countByType(type string) int
func countByType(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	typ, err := arg[string](tenantdb.OpCountByType, args, 0)
	if err != nil {
		return nil, err
	}
	if err := requireType(tenantdb.OpCountByType, typ); err != nil {
		return nil, err
	}
	return db.Count(ctx, typ, nil)
}
