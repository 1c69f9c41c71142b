// Package mongo implements tenantdb.Driver on a MongoDB cluster through mgo.
//
// One *mgo.Session is shared per connection; every operation works on a Copy
// of it so concurrent operations use separate sockets from the pool.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

const (
	defaultDialTimeout = 10 * time.Second
	mongoIDField       = "_id"

	// The connection is reported terminated after maxPingFailures
	// consecutive failed pings, pingInterval apart.
	pingInterval    = 10 * time.Second
	maxPingFailures = 3
)

// Driver implements tenantdb.Driver for MongoDB.
type Driver struct {
	logger *zap.Logger
}

var _ tenantdb.Driver = (*Driver)(nil)

// NewDriver creates a MongoDB driver.
func NewDriver(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger.With(zap.String("driver", "mongo"))}
}

func (d *Driver) Name() string { return tenantdb.DriverMongo }

// Connect dials the cluster. The write-concern options w and journal are
// applied as the session safety mode; mgo does not accept them in the URL.
func (d *Driver) Connect(ctx context.Context, connString string) (tenantdb.Conn, error) {
	dialURL, safe, err := splitWriteConcern(connString)
	if err != nil {
		return nil, err
	}
	info, err := mgo.ParseURL(dialURL)
	if err != nil {
		return nil, fmt.Errorf("parse mongo url: %w", err)
	}
	info.Timeout = defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		info.Timeout = time.Until(deadline)
	}

	sess, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, fmt.Errorf("mongo dial: %w", err)
	}
	sess.SetSafe(safe)
	sess.SetMode(mgo.Monotonic, true)

	d.logger.Info("mongo session established", zap.Strings("addrs", info.Addrs))
	c := newConn(sess, d.logger)
	go c.monitor(c.ping, pingInterval, maxPingFailures)
	return c, nil
}

// splitWriteConcern removes w and journal from the URL query and returns them as mgo.Safe.
func splitWriteConcern(connString string) (string, *mgo.Safe, error) {
	base, rawQuery, _ := strings.Cut(connString, "?")
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("parse mongo options: %w", err)
	}
	safe := &mgo.Safe{}
	if w := values.Get("w"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			safe.W = n
		} else {
			safe.WMode = w
		}
	}
	if j := values.Get("journal"); j != "" {
		journal, err := strconv.ParseBool(j)
		if err != nil {
			return "", nil, fmt.Errorf("parse mongo option journal=%q: %w", j, err)
		}
		safe.J = journal
	}
	values.Del("w")
	values.Del("journal")
	if len(values) == 0 {
		return base, safe, nil
	}
	return base + "?" + values.Encode(), safe, nil
}

type conn struct {
	sess   *mgo.Session
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{} // stops the monitor
	done   chan struct{}
}

func newConn(sess *mgo.Session, logger *zap.Logger) *conn {
	return &conn{sess: sess, logger: logger, stop: make(chan struct{}), done: make(chan struct{})}
}

func (c *conn) ping() error {
	s, err := c.session()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Ping()
}

// monitor pings the cluster every interval and closes the connection after
// maxFailures consecutive failures, which signals Done to its holders.
func (c *conn) monitor(ping func() error, interval time.Duration, maxFailures int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		if err := ping(); err != nil {
			failures++
			c.logger.Warn("mongo ping failed", zap.Int("failures", failures), zap.Error(err))
			if failures >= maxFailures {
				c.logger.Error("mongo cluster unreachable, terminating connection")
				_ = c.Close()
				return
			}
			continue
		}
		failures = 0
	}
}

func (c *conn) DB(name string) tenantdb.Database {
	return &database{conn: c, name: name}
}

func (c *conn) Done() <-chan struct{} { return c.done }

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	if c.sess != nil {
		c.sess.Close()
	}
	close(c.done)
	c.logger.Info("mongo session closed")
	return nil
}

// session returns a copy of the shared session; callers must Close it.
func (c *conn) session() (*mgo.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("mongo: connection closed")
	}
	return c.sess.Copy(), nil
}

type database struct {
	conn *conn
	name string
}

func (d *database) Name() string { return d.name }

// with runs fn against the collection on a copied session.
func (d *database) with(collection string, fn func(c *mgo.Collection) error) error {
	s, err := d.conn.session()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s.DB(d.name).C(collection))
}

func (d *database) FindByIDs(ctx context.Context, collection string, ids []string) ([]tenantdb.Document, error) {
	oids := make([]bson.ObjectId, 0, len(ids))
	for _, id := range ids {
		if bson.IsObjectIdHex(id) {
			oids = append(oids, bson.ObjectIdHex(id))
		}
	}
	if len(oids) == 0 {
		return nil, nil
	}
	return d.find(collection, bson.M{mongoIDField: bson.M{"$in": oids}}, 0)
}

func (d *database) Find(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]tenantdb.Document, error) {
	q, err := toQuery(filter)
	if err != nil {
		return nil, err
	}
	return d.find(collection, q, limit)
}

func (d *database) find(collection string, q bson.M, limit int) ([]tenantdb.Document, error) {
	var raw []bson.M
	err := d.with(collection, func(c *mgo.Collection) error {
		query := c.Find(q).Sort(mongoIDField)
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query.All(&raw)
	})
	if err != nil {
		return nil, fmt.Errorf("mongo find in %s: %w", collection, err)
	}
	docs := make([]tenantdb.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromBSON(m))
	}
	return docs, nil
}

func (d *database) Count(ctx context.Context, collection string, filter map[string]interface{}) (int, error) {
	q, err := toQuery(filter)
	if err != nil {
		return 0, err
	}
	var n int
	err = d.with(collection, func(c *mgo.Collection) error {
		var err error
		n, err = c.Find(q).Count()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mongo count in %s: %w", collection, err)
	}
	return n, nil
}

func (d *database) Insert(ctx context.Context, collection string, doc tenantdb.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = tenantdb.NewIDValue()
	}
	m, err := toBSON(doc, id)
	if err != nil {
		return "", err
	}
	if err := d.with(collection, func(c *mgo.Collection) error { return c.Insert(m) }); err != nil {
		return "", fmt.Errorf("mongo insert into %s: %w", collection, err)
	}
	return id, nil
}

func (d *database) Replace(ctx context.Context, collection, id string, doc tenantdb.Document) error {
	m, err := toBSON(doc, id)
	if err != nil {
		return err
	}
	err = d.with(collection, func(c *mgo.Collection) error { return c.UpdateId(m[mongoIDField], m) })
	return mapNotFound(err, "replace", collection)
}

func (d *database) Remove(ctx context.Context, collection, id string) error {
	if !bson.IsObjectIdHex(id) {
		return common.ErrNotFound
	}
	err := d.with(collection, func(c *mgo.Collection) error { return c.RemoveId(bson.ObjectIdHex(id)) })
	return mapNotFound(err, "remove", collection)
}

func (d *database) EnsureCollection(ctx context.Context, collection string) error {
	return d.with(collection, func(c *mgo.Collection) error {
		names, err := c.Database.CollectionNames()
		if err != nil {
			return fmt.Errorf("mongo list collections: %w", err)
		}
		for _, n := range names {
			if n == collection {
				return nil
			}
		}
		if err := c.Create(&mgo.CollectionInfo{}); err != nil {
			return fmt.Errorf("mongo create collection %s: %w", collection, err)
		}
		return nil
	})
}

func mapNotFound(err error, op, collection string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mgo.ErrNotFound):
		return common.ErrNotFound
	default:
		return fmt.Errorf("mongo %s in %s: %w", op, collection, err)
	}
}

// toQuery converts an equality filter, translating the id field to _id.
func toQuery(filter map[string]interface{}) (bson.M, error) {
	q := bson.M{}
	for k, v := range filter {
		if k != common.IDField {
			q[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok || !bson.IsObjectIdHex(s) {
			return nil, fmt.Errorf("mongo: invalid id filter %v", v)
		}
		q[mongoIDField] = bson.ObjectIdHex(s)
	}
	return q, nil
}

func toBSON(doc tenantdb.Document, id string) (bson.M, error) {
	if !bson.IsObjectIdHex(id) {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidID, id)
	}
	m := make(bson.M, len(doc))
	for k, v := range doc {
		if k == common.IDField {
			continue
		}
		m[k] = v
	}
	m[mongoIDField] = bson.ObjectIdHex(id)
	return m, nil
}

func fromBSON(m bson.M) tenantdb.Document {
	doc := make(tenantdb.Document, len(m))
	for k, v := range m {
		if k == mongoIDField {
			if oid, ok := v.(bson.ObjectId); ok {
				doc[common.IDField] = oid.Hex()
			} else {
				doc[common.IDField] = fmt.Sprint(v)
			}
			continue
		}
		doc[k] = v
	}
	return doc
}
