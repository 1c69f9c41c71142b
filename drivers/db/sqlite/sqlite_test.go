package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/drivers/db/sqlite"
)

// setupTestDB opens a file-based sqlite connection in a temp dir and returns
// a database handle plus the connection.
func setupTestDB(tb testing.TB, dbName string) (tenantdb.Database, tenantdb.Conn) {
	tb.Helper()
	dsn := "sqlite://" + filepath.Join(tb.TempDir(), "test.db") + "?journal=true&w=1"
	conn, err := sqlite.NewDriver(nil).Connect(context.Background(), dsn)
	require.NoError(tb, err, "Failed to connect sqlite driver")
	tb.Cleanup(func() {
		if err := conn.Close(); err != nil {
			tb.Logf("Error closing sqlite conn: %v", err)
		}
	})
	return conn.DB(dbName), conn
}

func TestDatabase_InsertAndFindByIDs(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t, "app1")

	id1, err := db.Insert(ctx, "User", tenantdb.Document{"handle": "alice"})
	require.NoError(t, err)
	assert.True(t, tenantdb.IsValidID("User", tenantdb.ID{Type: "User", Value: id1}))

	id2, err := db.Insert(ctx, "User", tenantdb.Document{"id": tenantdb.NewIDValue(), "handle": "bob"})
	require.NoError(t, err)

	docs, err := db.FindByIDs(ctx, "User", []string{id1, id2, tenantdb.NewIDValue()})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	byID := map[string]tenantdb.Document{}
	for _, d := range docs {
		byID[d.ID()] = d
	}
	assert.Equal(t, "alice", byID[id1]["handle"])
	assert.Equal(t, "bob", byID[id2]["handle"])

	docs, err = db.FindByIDs(ctx, "User", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDatabase_DuplicateInsert(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t, "app1")

	id, err := db.Insert(ctx, "User", tenantdb.Document{"handle": "alice"})
	require.NoError(t, err)
	_, err = db.Insert(ctx, "User", tenantdb.Document{"id": id})
	assert.ErrorIs(t, err, sqlite.ErrDuplicateID)
}

func TestDatabase_FindCountWithFilter(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t, "app1")

	for _, d := range []tenantdb.Document{
		{"handle": "alice", "admin": true},
		{"handle": "bob", "admin": false},
		{"handle": "carol", "admin": true},
	} {
		_, err := db.Insert(ctx, "User", d)
		require.NoError(t, err)
	}

	admins, err := db.Find(ctx, "User", map[string]interface{}{"admin": true}, 0)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	one, err := db.Find(ctx, "User", nil, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "alice", one[0]["handle"], "documents are ordered by id, which follows insertion time")

	n, err := db.Count(ctx, "User", map[string]interface{}{"handle": "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = db.Find(ctx, "User", map[string]interface{}{"bad field": 1}, 0)
	assert.Error(t, err)
}

func TestDatabase_ReplaceRemove(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t, "app1")

	id, err := db.Insert(ctx, "User", tenantdb.Document{"handle": "alice"})
	require.NoError(t, err)

	require.NoError(t, db.Replace(ctx, "User", id, tenantdb.Document{"handle": "alicia"}))
	docs, err := db.FindByIDs(ctx, "User", []string{id})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alicia", docs[0]["handle"])

	require.NoError(t, db.Remove(ctx, "User", id))
	assert.ErrorIs(t, db.Remove(ctx, "User", id), tenantdb.ErrNotFound)
	assert.ErrorIs(t, db.Replace(ctx, "User", id, tenantdb.Document{}), tenantdb.ErrNotFound)
}

func TestDatabase_IsolatedByName(t *testing.T) {
	ctx := context.Background()
	db1, conn := setupTestDB(t, "app1")
	db2 := conn.DB("app2")

	id, err := db1.Insert(ctx, "User", tenantdb.Document{"handle": "alice"})
	require.NoError(t, err)

	docs, err := db2.FindByIDs(ctx, "User", []string{id})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, "app2", db2.Name())

	require.NoError(t, db1.EnsureCollection(ctx, "User"))
	require.NoError(t, db1.EnsureCollection(ctx, "User"), "EnsureCollection is idempotent")
}

func TestConn_CloseSignalsDone(t *testing.T) {
	_, conn := setupTestDB(t, "app1")

	select {
	case <-conn.Done():
		t.Fatal("Done closed before Close")
	default:
	}
	require.NoError(t, conn.Close())
	<-conn.Done()
	require.NoError(t, conn.Close(), "Close is idempotent")
}
