package app

import (
	"strings"

	"github.com/charlesng35/formgate/internal/locks"
)

// RedisClientConfig converts the application cache configuration into the locks package representation.
func (c CacheConfig) RedisClientConfig() locks.RedisConfig {
	return locks.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
