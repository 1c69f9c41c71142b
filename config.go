package tenantdb

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported driver and cache backend names.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	CacheBackendLocal = "local"
	CacheBackendRedis = "redis"
)

// Config holds the process-level configuration of a tenant client.
type Config struct {
	Hostname         string        `yaml:"hostname"`
	DBName           string        `yaml:"db_name"`
	ConnectionString string        `yaml:"connection_string"`
	Driver           string        `yaml:"driver"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	// AppDomain is appended to an application name to form its hostname.
	AppDomain string       `yaml:"app_domain"`
	Cache     CacheConfig  `yaml:"cache"`
	Loader    LoaderConfig `yaml:"loader"`
}

// CacheConfig configures the external cache store.
type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	// Degrade recomputes metadata instead of failing when the store is down.
	Degrade bool `yaml:"degrade"`
}

// LoaderConfig configures the per-type batch loaders.
type LoaderConfig struct {
	Wait     time.Duration `yaml:"wait"`
	MaxBatch int           `yaml:"max_batch"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverSQLite,
		ConnectTimeout: defaultConnectTimeout,
		AppDomain:      "localhost.reindexio.com:5000",
		Cache: CacheConfig{
			Backend: CacheBackendLocal,
			Addr:    "localhost:6379",
			TTL:     DefaultMetadataTTL,
		},
		Loader: LoaderConfig{
			Wait:     time.Millisecond,
			MaxBatch: 100,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that have no sensible default.
func (c Config) Validate() error {
	if c.ConnectionString == "" {
		return errors.New("connection_string must be set")
	}
	switch c.Driver {
	case DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	switch c.Cache.Backend {
	case CacheBackendLocal, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Loader.MaxBatch < 0 {
		return errors.New("loader.max_batch must not be negative")
	}
	return nil
}

// ForApp returns c addressed to the named application: the database takes
// the name and the hostname is name.AppDomain.
func (c Config) ForApp(name string) Config {
	c.DBName = name
	c.Hostname = name + "." + c.AppDomain
	return c
}

// ClientOptions translates the tuning settings into Client options.
func (c Config) ClientOptions() []Option {
	opts := []Option{
		WithLoaderWait(c.Loader.Wait),
		WithLoaderMaxBatch(c.Loader.MaxBatch),
		WithMetadataTTL(c.Cache.TTL),
	}
	if c.Cache.Degrade {
		opts = append(opts, WithDegradedMetadataCache())
	}
	return opts
}
