package config

import (
	"fmt"
	"time"
)

type DatabaseConfig struct {
	// Driver selects the repository backend: mongodb or memory.
	Driver         string        `yaml:"driver"`
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	MinPoolSize    int           `yaml:"min_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SocketTimeout  time.Duration `yaml:"socket_timeout"`
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Driver:         getEnv("DATABASE_DRIVER", "mongodb"),
		URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017/tripchat"),
		Database:       getEnv("MONGODB_DATABASE", "tripchat"),
		MaxPoolSize:    getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100),
		MinPoolSize:    getEnvAsInt("MONGODB_MIN_POOL_SIZE", 5),
		ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		SocketTimeout:  getEnvAsDuration("MONGODB_SOCKET_TIMEOUT", 30*time.Second),
	}
}

func (c *DatabaseConfig) validate() error {
	switch c.Driver {
	case "memory":
		return nil
	case "mongodb":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Driver)
	}
	if c.URI == "" || c.Database == "" {
		return fmt.Errorf("MONGODB_URI and MONGODB_DATABASE are required for the mongodb driver")
	}
	if c.MinPoolSize > c.MaxPoolSize {
		return fmt.Errorf("MONGODB_MIN_POOL_SIZE %d exceeds MONGODB_MAX_POOL_SIZE %d", c.MinPoolSize, c.MaxPoolSize)
	}
	return nil
}
