package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

const (
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under load.
	defaultMaxOpenConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second

	schemePrefix = "sqlite://"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	db         TEXT NOT NULL,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (db, collection, id)
);
CREATE TABLE IF NOT EXISTS collections (
	db   TEXT NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (db, name)
);`

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrDuplicateID is returned when inserting a document whose id already exists.
var ErrDuplicateID = errors.New("sqlite: duplicate document id")

// Driver implements tenantdb.Driver on an embedded sqlite file. Every tenant
// database of a connection lives in the same file, keyed by database name.
type Driver struct {
	logger *zap.Logger
}

var _ tenantdb.Driver = (*Driver)(nil)

// NewDriver creates a sqlite driver.
func NewDriver(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger.With(zap.String("driver", "sqlite"))}
}

func (d *Driver) Name() string { return tenantdb.DriverSQLite }

// Connect opens the sqlite file named by connString. A "sqlite://" prefix is
// rewritten to a "file:" URI; unknown URI options are ignored by sqlite.
func (d *Driver) Connect(ctx context.Context, connString string) (tenantdb.Conn, error) {
	dsn := connString
	if strings.HasPrefix(dsn, schemePrefix) {
		dsn = "file:" + strings.TrimPrefix(dsn, schemePrefix)
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	d.logger.Info("sqlite connection opened")
	return &conn{db: db, logger: d.logger, done: make(chan struct{})}, nil
}

type conn struct {
	db     *sqlx.DB
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (c *conn) DB(name string) tenantdb.Database {
	return &database{db: c.db, name: name, logger: c.logger.With(zap.String("db", name))}
}

func (c *conn) Done() <-chan struct{} { return c.done }

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.db.Close()
		close(c.done)
	})
	return err
}

type database struct {
	db     *sqlx.DB
	name   string
	logger *zap.Logger
}

type row struct {
	ID   string `db:"id"`
	Body string `db:"body"`
}

func (d *database) Name() string { return d.name }

func (d *database) FindByIDs(ctx context.Context, collection string, ids []string) ([]tenantdb.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, body FROM documents WHERE db = ? AND collection = ? AND id IN (?)`,
		d.name, collection, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite FindByIDs build error: %w", err)
	}
	return d.selectDocs(ctx, d.db.Rebind(query), args)
}

func (d *database) Find(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]tenantdb.Document, error) {
	where, args, err := d.where(collection, filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, body FROM documents WHERE ` + where + ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return d.selectDocs(ctx, query, args)
}

func (d *database) Count(ctx context.Context, collection string, filter map[string]interface{}) (int, error) {
	where, args, err := d.where(collection, filter)
	if err != nil {
		return 0, err
	}
	var n int
	if err := d.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("sqlite Count error: %w", err)
	}
	return n, nil
}

func (d *database) Insert(ctx context.Context, collection string, doc tenantdb.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = tenantdb.NewIDValue()
	}
	body, err := encode(doc, id)
	if err != nil {
		return "", err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO documents (db, collection, id, body) VALUES (?, ?, ?, ?)`,
		d.name, collection, id, body,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return "", fmt.Errorf("sqlite Insert error: %w", err)
	}
	d.logger.Debug("document inserted", zap.String("collection", collection), zap.String("id", id))
	return id, nil
}

func (d *database) Replace(ctx context.Context, collection, id string, doc tenantdb.Document) error {
	body, err := encode(doc, id)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE db = ? AND collection = ? AND id = ?`,
		body, d.name, collection, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite Replace error: %w", err)
	}
	return requireAffected(res)
}

func (d *database) Remove(ctx context.Context, collection, id string) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM documents WHERE db = ? AND collection = ? AND id = ?`,
		d.name, collection, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite Remove error: %w", err)
	}
	return requireAffected(res)
}

func (d *database) EnsureCollection(ctx context.Context, collection string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (db, name) VALUES (?, ?)`,
		d.name, collection,
	)
	if err != nil {
		return fmt.Errorf("sqlite EnsureCollection error: %w", err)
	}
	return nil
}

// where builds an equality filter over top-level document fields.
func (d *database) where(collection string, filter map[string]interface{}) (string, []interface{}, error) {
	clauses := []string{"db = ?", "collection = ?"}
	args := []interface{}{d.name, collection}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if !fieldName.MatchString(f) {
			return "", nil, fmt.Errorf("sqlite: invalid filter field %q", f)
		}
		v := filter[f]
		if b, ok := v.(bool); ok {
			// json_extract yields 1/0 for JSON booleans.
			if b {
				v = 1
			} else {
				v = 0
			}
		}
		if f == common.IDField {
			clauses = append(clauses, "id = ?")
		} else {
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, "$."+f)
		}
		args = append(args, v)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (d *database) selectDocs(ctx context.Context, query string, args []interface{}) ([]tenantdb.Document, error) {
	start := time.Now()
	var rows []row
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		d.logger.Debug("select failed", zap.String("sql", query), zap.Duration("took", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("sqlite Select error: %w", err)
	}
	d.logger.Debug("select", zap.String("sql", query), zap.Int("rows", len(rows)), zap.Duration("took", time.Since(start)))

	docs := make([]tenantdb.Document, 0, len(rows))
	for _, r := range rows {
		var doc tenantdb.Document
		if err := json.Unmarshal([]byte(r.Body), &doc); err != nil {
			return nil, fmt.Errorf("sqlite: decode document %s: %w", r.ID, err)
		}
		doc[common.IDField] = r.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

func encode(doc tenantdb.Document, id string) (string, error) {
	out := make(tenantdb.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[common.IDField] = id
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode document %s: %w", id, err)
	}
	return string(b), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
