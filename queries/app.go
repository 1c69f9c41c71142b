package queries

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

// SecretLength is the length of generated application secrets.
const SecretLength = 40

// secretValueField holds the secret string inside a secret document.
const secretValueField = "value"

// SystemCollections are created in every tenant database by createStorage.
var SystemCollections = []string{
	common.TypeCollection,
	common.HookCollection,
	common.SecretCollection,
}

// App returns the tenant administration operations.
func App() tenantdb.QueryTable {
	return tenantdb.QueryTable{
		tenantdb.OpGetMetadata:   getMetadata,
		tenantdb.OpCreateType:    createType,
		tenantdb.OpCreateHook:    createHook,
		tenantdb.OpCreateSecret:  createSecret,
		tenantdb.OpGetSecrets:    getSecrets,
		tenantdb.OpCreateStorage: createStorage,
	}
}

// getMetadata() *Metadata reads every type and hook definition.
func getMetadata(ctx context.Context, db tenantdb.Database, _ ...interface{}) (interface{}, error) {
	typeDocs, err := db.Find(ctx, common.TypeCollection, nil, 0)
	if err != nil {
		return nil, err
	}
	hookDocs, err := db.Find(ctx, common.HookCollection, nil, 0)
	if err != nil {
		return nil, err
	}
	md := &tenantdb.Metadata{
		Types: make([]tenantdb.TypeDefinition, 0, len(typeDocs)),
		Hooks: make([]tenantdb.Hook, 0, len(hookDocs)),
	}
	for _, d := range typeDocs {
		var def tenantdb.TypeDefinition
		if err := fromDocument(d, &def); err != nil {
			return nil, err
		}
		md.Types = append(md.Types, def)
	}
	for _, d := range hookDocs {
		var h tenantdb.Hook
		if err := fromDocument(d, &h); err != nil {
			return nil, err
		}
		md.Hooks = append(md.Hooks, h)
	}
	return md, nil
}

// createType(def TypeDefinition) *TypeDefinition
func createType(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	def, err := arg[tenantdb.TypeDefinition](tenantdb.OpCreateType, args, 0)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, fmt.Errorf("%w: %s: type name is required", tenantdb.ErrInvalidArgument, tenantdb.OpCreateType)
	}
	id, err := insertAs(ctx, db, common.TypeCollection, def)
	if err != nil {
		return nil, err
	}
	def.ID = id
	return &def, nil
}

// createHook(hook Hook) *Hook
func createHook(ctx context.Context, db tenantdb.Database, args ...interface{}) (interface{}, error) {
	hook, err := arg[tenantdb.Hook](tenantdb.OpCreateHook, args, 0)
	if err != nil {
		return nil, err
	}
	if hook.URL == "" || hook.Trigger == "" {
		return nil, fmt.Errorf("%w: %s: trigger and url are required", tenantdb.ErrInvalidArgument, tenantdb.OpCreateHook)
	}
	id, err := insertAs(ctx, db, common.HookCollection, hook)
	if err != nil {
		return nil, err
	}
	hook.ID = id
	return &hook, nil
}

// createSecret() string stores and returns a new random secret.
func createSecret(ctx context.Context, db tenantdb.Database, _ ...interface{}) (interface{}, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	if _, err := db.Insert(ctx, common.SecretCollection, tenantdb.Document{secretValueField: secret}); err != nil {
		return nil, err
	}
	return secret, nil
}

// getSecrets() []string
func getSecrets(ctx context.Context, db tenantdb.Database, _ ...interface{}) (interface{}, error) {
	docs, err := db.Find(ctx, common.SecretCollection, nil, 0)
	if err != nil {
		return nil, err
	}
	secrets := make([]string, 0, len(docs))
	for _, d := range docs {
		if s, ok := d[secretValueField].(string); ok {
			secrets = append(secrets, s)
		}
	}
	return secrets, nil
}

// createStorage() ensures every system collection exists.
func createStorage(ctx context.Context, db tenantdb.Database, _ ...interface{}) (interface{}, error) {
	for _, coll := range SystemCollections {
		if err := db.EnsureCollection(ctx, coll); err != nil {
			return nil, fmt.Errorf("create %s: %w", coll, err)
		}
	}
	return nil, nil
}

// generateSecret returns SecretLength URL-safe random characters.
func generateSecret() (string, error) {
	buf := make([]byte, SecretLength*3/4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func insertAs(ctx context.Context, db tenantdb.Database, collection string, v interface{}) (string, error) {
	var doc tenantdb.Document
	if err := convert(v, &doc); err != nil {
		return "", err
	}
	delete(doc, common.IDField)
	return db.Insert(ctx, collection, doc)
}

func fromDocument(doc tenantdb.Document, out interface{}) error {
	return convert(doc, out)
}

// convert moves between documents and typed definitions through their JSON form.
func convert(in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %T: %w", in, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}
