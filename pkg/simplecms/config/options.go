package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// WithPort sets the HTTP server port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment.
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return errors.New("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the backing store type and connection URL.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType == "" {
			return errors.New("database type cannot be empty")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithAutoMigrate controls whether BuildService applies migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithMemoryCache caches content types in process for ttl.
func WithMemoryCache(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.CacheType = "memory"
		c.CacheTTL = ttl
		return nil
	}
}

// WithRedisCache shares cached content types through Redis.
func WithRedisCache(addr, password string, db int, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return errors.New("redis address cannot be empty")
		}
		c.CacheType = "redis"
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
		c.CacheTTL = ttl
		return nil
	}
}

// WithoutCache disables content type caching.
func WithoutCache() Option {
	return func(c *ServerConfig) error {
		c.CacheType = "none"
		return nil
	}
}

// WithContentTypes adds declarations defined in code.
func WithContentTypes(decls ...simplecms.Declaration) Option {
	return func(c *ServerConfig) error {
		c.Declarations = append(c.Declarations, decls...)
		return nil
	}
}

// WithContentTypesFile reads declarations from a YAML file at build time.
func WithContentTypesFile(path string) Option {
	return func(c *ServerConfig) error {
		c.ContentTypesFile = path
		return nil
	}
}

// WithJWTSecret requires HS256 bearer tokens on the API.
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithAPIKey requires an API key whose SHA-256 matches sha256Hex.
func WithAPIKey(sha256Hex string) Option {
	return func(c *ServerConfig) error {
		c.APIKeySHA256 = sha256Hex
		return nil
	}
}

// WithMetrics enables or disables Prometheus collectors.
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}

// WithHookLogging enables or disables the logging hook bundle.
func WithHookLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableHookLogging = enabled
		return nil
	}
}

// WithEnv reads fields from environment variables. Fields whose variable is
// unset and whose current value is zero get their env-default, so a false or
// empty value set by an earlier option is reset. Pass WithEnv first and put
// explicit options after it.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a YAML config file, then applies environment
// overrides on top of it. Like WithEnv, it fills zero fields with their
// env-default and belongs before explicit options.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}
