package queries_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/drivers/db/sqlite"
	"github.com/burugo/tenantdb/queries"
)

func setupTestDB(tb testing.TB) tenantdb.Database {
	tb.Helper()
	dsn := "sqlite://" + filepath.Join(tb.TempDir(), "queries.db")
	conn, err := sqlite.NewDriver(nil).Connect(context.Background(), dsn)
	require.NoError(tb, err, "Failed to connect sqlite driver")
	tb.Cleanup(func() { _ = conn.Close() })
	return conn.DB("app1")
}

func call(t *testing.T, db tenantdb.Database, name string, args ...interface{}) (interface{}, error) {
	t.Helper()
	q, ok := queries.Default()[name]
	require.True(t, ok, "operation %s registered", name)
	return q(context.Background(), db, args...)
}

func TestDefault_RegistersEveryOperation(t *testing.T) {
	table := queries.Default()
	for _, name := range []string{
		tenantdb.OpGetByIDBatch, tenantdb.OpGetByField, tenantdb.OpGetAllByType, tenantdb.OpCountByType,
		tenantdb.OpCreate, tenantdb.OpReplace, tenantdb.OpRemove,
		tenantdb.OpGetMetadata, tenantdb.OpCreateType, tenantdb.OpCreateHook,
		tenantdb.OpCreateSecret, tenantdb.OpGetSecrets, tenantdb.OpCreateStorage,
	} {
		assert.Contains(t, table, name)
	}
}

func TestMerge_LaterWins(t *testing.T) {
	override := tenantdb.QueryTable{
		tenantdb.OpCountByType: func(context.Context, tenantdb.Database, ...interface{}) (interface{}, error) {
			return 42, nil
		},
	}
	table := queries.Merge(queries.Simple(), override)
	res, err := table[tenantdb.OpCountByType](context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Contains(t, table, tenantdb.OpGetByIDBatch)
}

func TestSimpleAndMutation(t *testing.T) {
	db := setupTestDB(t)

	res, err := call(t, db, tenantdb.OpCreate, "User", tenantdb.Document{"handle": "alice"})
	require.NoError(t, err)
	alice := res.(tenantdb.Document)
	require.NotEmpty(t, alice.ID())

	res, err = call(t, db, tenantdb.OpCreate, "User", tenantdb.Document{"handle": "bob"})
	require.NoError(t, err)
	bob := res.(tenantdb.Document)

	res, err = call(t, db, tenantdb.OpGetByIDBatch, "User", []string{alice.ID(), bob.ID(), tenantdb.NewIDValue()})
	require.NoError(t, err)
	batch := res.(map[string]tenantdb.Document)
	assert.Len(t, batch, 2)
	assert.Equal(t, "bob", batch[bob.ID()]["handle"])

	res, err = call(t, db, tenantdb.OpGetByField, "User", "handle", "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID(), res.(tenantdb.Document).ID())

	_, err = call(t, db, tenantdb.OpGetByField, "User", "handle", "nobody")
	assert.ErrorIs(t, err, tenantdb.ErrNotFound)

	res, err = call(t, db, tenantdb.OpGetAllByType, "User", 1)
	require.NoError(t, err)
	assert.Len(t, res.([]tenantdb.Document), 1)

	res, err = call(t, db, tenantdb.OpGetAllByType, "User")
	require.NoError(t, err)
	assert.Len(t, res.([]tenantdb.Document), 2)

	res, err = call(t, db, tenantdb.OpReplace, "User", alice.ID(), tenantdb.Document{"handle": "alicia"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID(), res.(tenantdb.Document).ID())

	res, err = call(t, db, tenantdb.OpRemove, "User", alice.ID())
	require.NoError(t, err)
	assert.Equal(t, "alicia", res.(tenantdb.Document)["handle"], "remove returns the removed document")

	_, err = call(t, db, tenantdb.OpRemove, "User", alice.ID())
	assert.ErrorIs(t, err, tenantdb.ErrNotFound)

	res, err = call(t, db, tenantdb.OpCountByType, "User")
	require.NoError(t, err)
	assert.Equal(t, 1, res)
}

func TestArgumentErrors(t *testing.T) {
	db := setupTestDB(t)

	_, err := call(t, db, tenantdb.OpGetByIDBatch, "User")
	assert.ErrorIs(t, err, tenantdb.ErrInvalidArgument)

	_, err = call(t, db, tenantdb.OpGetByIDBatch, "User", "not-a-slice")
	assert.ErrorIs(t, err, tenantdb.ErrInvalidArgument)

	_, err = call(t, db, tenantdb.OpCountByType, "")
	assert.ErrorIs(t, err, tenantdb.ErrInvalidArgument)

	_, err = call(t, db, tenantdb.OpCreateType, tenantdb.TypeDefinition{})
	assert.ErrorIs(t, err, tenantdb.ErrInvalidArgument)
}

func TestAppOperations(t *testing.T) {
	db := setupTestDB(t)

	_, err := call(t, db, tenantdb.OpCreateStorage)
	require.NoError(t, err)

	res, err := call(t, db, tenantdb.OpGetMetadata)
	require.NoError(t, err)
	assert.Equal(t, &tenantdb.Metadata{Types: []tenantdb.TypeDefinition{}, Hooks: []tenantdb.Hook{}}, res)

	res, err = call(t, db, tenantdb.OpCreateType, tenantdb.TypeDefinition{
		Name:       "User",
		Kind:       "OBJECT",
		Interfaces: []string{"Node"},
		Fields:     []tenantdb.FieldDefinition{{Name: "handle", Type: "String", Unique: true}},
	})
	require.NoError(t, err)
	userType := res.(*tenantdb.TypeDefinition)
	assert.NotEmpty(t, userType.ID)

	res, err = call(t, db, tenantdb.OpCreateHook, tenantdb.Hook{Type: "User", Trigger: "afterCreate", URL: "https://example.com/hook"})
	require.NoError(t, err)
	hook := res.(*tenantdb.Hook)

	res, err = call(t, db, tenantdb.OpGetMetadata)
	require.NoError(t, err)
	md := res.(*tenantdb.Metadata)
	assert.Equal(t, []tenantdb.TypeDefinition{*userType}, md.Types)
	assert.Equal(t, []tenantdb.Hook{*hook}, md.Hooks)

	res, err = call(t, db, tenantdb.OpCreateSecret)
	require.NoError(t, err)
	secret := res.(string)
	assert.Len(t, secret, queries.SecretLength)

	res, err = call(t, db, tenantdb.OpGetSecrets)
	require.NoError(t, err)
	assert.Equal(t, []string{secret}, res)
}
