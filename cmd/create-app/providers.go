package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/drivers/cache/local"
	"github.com/burugo/tenantdb/drivers/cache/redis"
	"github.com/burugo/tenantdb/drivers/db/mongo"
	"github.com/burugo/tenantdb/drivers/db/sqlite"
	promadapter "github.com/burugo/tenantdb/drivers/metrics/prometheus"
	"github.com/burugo/tenantdb/queries"
)

// App holds the dependencies wire injects.
type App struct {
	Client   *tenantdb.Client
	Registry *tenantdb.Registry
	Metrics  *promadapter.Metrics
}

// --- Providers ---

func provideDriver(cfg tenantdb.Config, logger *zap.Logger) (tenantdb.Driver, error) {
	switch cfg.Driver {
	case tenantdb.DriverSQLite:
		return sqlite.NewDriver(logger), nil
	case tenantdb.DriverMongo:
		return mongo.NewDriver(logger), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// provideRegistry creates the connection registry. Cleanup closes every shared connection.
func provideRegistry(cfg tenantdb.Config, driver tenantdb.Driver, logger *zap.Logger) (*tenantdb.Registry, func()) {
	registry := tenantdb.NewRegistry(driver,
		tenantdb.WithRegistryLogger(logger),
		tenantdb.WithConnectTimeout(cfg.ConnectTimeout),
	)
	cleanup := func() {
		if err := registry.Close(); err != nil {
			logger.Warn("error closing connection registry", zap.Error(err))
		}
	}
	return registry, cleanup
}

// provideCacheStore creates the metadata cache store. Includes cleanup logic.
func provideCacheStore(cfg tenantdb.Config, logger *zap.Logger) (tenantdb.CacheStore, func(), error) {
	switch cfg.Cache.Backend {
	case tenantdb.CacheBackendLocal:
		return local.New(), func() {}, nil
	case tenantdb.CacheBackendRedis:
		store, err := redis.NewClient(nil, &redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Ping:     !cfg.Cache.Degrade,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Warn("error closing redis cache store", zap.Error(err))
			}
		}
		return store, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func provideMetrics() (*promadapter.Metrics, error) {
	return promadapter.New(prometheus.NewRegistry())
}

func provideClient(
	cfg tenantdb.Config,
	registry *tenantdb.Registry,
	store tenantdb.CacheStore,
	metrics *promadapter.Metrics,
	logger *zap.Logger,
) (*tenantdb.Client, func(), error) {
	opts := append(cfg.ClientOptions(), tenantdb.WithLogger(logger), tenantdb.WithMetrics(metrics))
	client, err := tenantdb.New(registry, cfg.Hostname, cfg.DBName, tenantdb.Options{
		ConnectionString: cfg.ConnectionString,
		Queries:          queries.Default(),
		Cache:            store,
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = client.Close() }
	return client, cleanup, nil
}
