package config

// Redis backs the staff-route rate limiter and the pricing response cache.
// Both degrade when the server is unreachable: the limiter falls back to an
// in-process bucket and the cache is skipped.

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings.  REDIS_HOST and REDIS_PORT
// take precedence over REDIS_ADDR.  An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

func (e *env) redisConfig() RedisConfig {
	rc := RedisConfig{
		Addr:     e.str("REDIS_ADDR", ""),
		Password: e.str("REDIS_PASSWORD", ""),
		DB:       e.int("REDIS_DB", 0),
		TLS:      e.bool("REDIS_TLS", false),
	}
	host, port := e.str("REDIS_HOST", ""), e.str("REDIS_PORT", "")
	if host != "" && port != "" {
		rc.Addr = host + ":" + port
	}
	return rc
}

// NewRedisClient connects and pings with a short timeout.  It returns nil
// when Redis is disabled or unreachable.
func NewRedisClient(rc RedisConfig, logger *slog.Logger) *redis.Client {
	if rc.Addr == "" {
		return nil
	}
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warn("redis unavailable, continuing without it", "addr", rc.Addr, "error", err)
		}
		_ = client.Close()
		return nil
	}
	return client
}
