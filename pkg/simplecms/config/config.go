package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
	memorycache "github.com/tendant/simple-cms/pkg/simplecms/cache/memory"
	rediscache "github.com/tendant/simple-cms/pkg/simplecms/cache/redis"
	"github.com/tendant/simple-cms/pkg/simplecms/metrics"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	repopg "github.com/tendant/simple-cms/pkg/simplecms/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:              "8080",
		Environment:       "development",
		DatabaseType:      "memory",
		AutoMigrate:       true,
		CacheType:         "memory",
		CacheTTL:          5 * time.Minute,
		RedisAddr:         "localhost:6379",
		RedisPrefix:       rediscache.DefaultPrefix,
		EnableMetrics:     true,
		MetricsNamespace:  "simplecms",
		EnableHookLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-cms service.
// The env and yaml tags are read by cleanenv.
type ServerConfig struct {
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	// Database configuration
	DatabaseType string `yaml:"database_type" env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL  string `yaml:"database_url" env:"DATABASE_URL"`
	AutoMigrate  bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"true"`

	// Content type cache
	CacheType     string        `yaml:"cache_type" env:"CACHE_TYPE" env-default:"memory"` // "none", "memory", "redis"
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"5m"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	RedisPrefix   string        `yaml:"redis_prefix" env:"REDIS_PREFIX" env-default:"simplecms:content_type:"`

	// Content type declarations
	ContentTypesFile string                  `yaml:"content_types_file" env:"CONTENT_TYPES_FILE"`
	Declarations     []simplecms.Declaration `yaml:"-"`

	// HTTP guards, both optional
	JWTSecret    string `yaml:"jwt_secret" env:"JWT_SECRET"`
	APIKeySHA256 string `yaml:"api_key_sha256" env:"API_KEY_SHA256"`

	// Observability
	EnableMetrics     bool   `yaml:"enable_metrics" env:"ENABLE_METRICS" env-default:"true"`
	MetricsNamespace  string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE" env-default:"simplecms"`
	EnableHookLogging bool   `yaml:"enable_hook_logging" env:"ENABLE_HOOK_LOGGING" env-default:"true"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.CacheType {
	case "none", "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required when using the redis cache")
		}
	default:
		return errors.New("cache_type must be 'none', 'memory' or 'redis'")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache_ttl must not be negative")
	}

	return nil
}

// Components holds what BuildService assembled. Close releases the
// connections it opened.
type Components struct {
	Service simplecms.Service
	Metrics *metrics.Collector

	pool  *pgxpool.Pool
	redis *rediscache.Cache
}

// Close closes the database pool and Redis client, if any.
func (c *Components) Close() error {
	var err error
	if c.redis != nil {
		err = c.redis.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	return err
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := &Components{}
	options := []simplecms.Option{simplecms.WithLogger(logger)}

	decls := append([]simplecms.Declaration(nil), c.Declarations...)
	if c.ContentTypesFile != "" {
		fromFile, err := LoadDeclarations(c.ContentTypesFile)
		if err != nil {
			return nil, err
		}
		decls = append(decls, fromFile...)
	}
	options = append(options, simplecms.WithContentTypes(decls...))

	adapter, err := c.buildAdapter(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("failed to build adapter: %w", err)
	}
	options = append(options, simplecms.WithAdapter(adapter))

	cache, err := c.buildCache(ctx, out)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}
	if cache != nil {
		options = append(options, simplecms.WithTypeCache(cache))
	}

	if c.EnableMetrics {
		out.Metrics = metrics.NewCollector(c.MetricsNamespace)
		options = append(options, simplecms.WithHooks(out.Metrics.Hooks()))
	}
	if c.EnableHookLogging {
		options = append(options, simplecms.WithHooks(simplecms.LoggingHooks(logger)))
	}

	svc, err := simplecms.New(options...)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Service = svc
	return out, nil
}

// buildAdapter creates an Adapter based on the configuration
func (c *ServerConfig) buildAdapter(ctx context.Context, out *Components) (simplecms.Adapter, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		if c.AutoMigrate {
			if err := repopg.Migrate(c.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		out.pool = pool
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildCache(ctx context.Context, out *Components) (simplecms.TypeCache, error) {
	switch c.CacheType {
	case "none":
		return nil, nil
	case "memory":
		return memorycache.New(c.CacheTTL), nil
	case "redis":
		rc, err := rediscache.NewFromAddr(c.RedisAddr, c.RedisPassword, c.RedisDB, c.RedisPrefix, c.CacheTTL)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, err
		}
		out.redis = rc
		return rc, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", c.CacheType)
	}
}
