package session

import "time"

// Backend names accepted in Config.Store.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds session store configuration from YAML.
type Config struct {
	// Store specifies the storage backend type.
	// Options: "file", "redis", "memory"
	// Default: "file"
	Store string `yaml:"store"`

	// BaseDir is the base directory for file-based storage.
	// Default: ~/.travelintel
	BaseDir string `yaml:"base_dir"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password is the Redis password (optional).
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// Prefix is the key prefix for all keys (default: "travelintel:session:").
	Prefix string `yaml:"prefix"`
	// TTL is the key expiry duration (0 = never expire).
	TTL time.Duration `yaml:"ttl"`
	// PoolSize is the connection pool size (default: 10).
	PoolSize int `yaml:"pool_size"`
}

// DefaultConfig returns the default session store configuration.
func DefaultConfig() Config {
	return Config{
		Store:   StoreFile,
		BaseDir: "",
	}
}
