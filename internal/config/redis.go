package config

// Redis backs the rate limiter, the response cache and the lock that keeps
// replicas from running the expiry sweep at the same time.  Every user of
// the client degrades gracefully when it is nil.

import (
    "context"
    "crypto/tls"
    "os"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
)

// RedisConfig holds connection settings for Redis.
//
//   REDIS_ADDR     – host:port (REDIS_HOST and REDIS_PORT take precedence when both set)
//   REDIS_PASSWORD – optional password
//   REDIS_DB       – database number (default 0)
//   REDIS_TLS      – enable TLS when "true" or "1"
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

// LoadRedisConfig reads RedisConfig from the environment.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    tlsEnv := os.Getenv("REDIS_TLS")
    return RedisConfig{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
        TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
    }
}

// NewRedisClient connects to Redis and pings it.  It returns nil when the
// server is unreachable.
func NewRedisClient(cfg RedisConfig, log logrus.FieldLogger) *redis.Client {
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{InsecureSkipVerify: true}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.WithError(err).WithField("addr", cfg.Addr).Warn("redis: unavailable, cache/rate limit/sweep lock disabled")
        _ = client.Close()
        return nil
    }
    return client
}
