package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/haunted-house-queue/internal/config"
)

// cachedResponse is what a cache entry holds.  Body is base64 in JSON.
type cachedResponse struct {
    Status      int    `json:"status"`
    ContentType string `json:"content_type"`
    Body        []byte `json:"body"`
}

// bodyRecorder tees the response body into buf until it exceeds limit.
type bodyRecorder struct {
    http.ResponseWriter
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
    if !w.overflow {
        if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
            w.overflow = true
            w.buf.Reset()
        } else {
            w.buf.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

// generationKey holds a counter that is part of every cache key.  Bumping
// it orphans all cached responses at once; they then age out via TTL.
func generationKey(cfg config.CacheConfig) string { return cfg.Prefix + ":gen" }

func generation(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client) string {
    gen, err := rdb.Get(ctx, generationKey(cfg)).Result()
    if err != nil {
        return "0"
    }
    return gen
}

// cacheKey is prefix:generation:sha1(method + request URI).
func cacheKey(prefix, gen string, r *http.Request) string {
    sum := sha1.Sum([]byte(r.Method + " " + r.URL.RequestURI()))
    return prefix + ":" + gen + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache serves repeated public reads from Redis.  Only 200
// responses are stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil || cfg.TTL <= 0 {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            if !cfg.Methods[strings.ToUpper(req.Method)] {
                return next(c)
            }
            ctx := req.Context()
            key := cacheKey(cfg.Prefix, generation(ctx, cfg, rdb), req)

            if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
                var hit cachedResponse
                if json.Unmarshal(raw, &hit) == nil {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(hit.Status, hit.ContentType, hit.Body)
                }
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, limit: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if c.Response().Status != http.StatusOK || rec.overflow {
                return nil
            }

            entry, err := json.Marshal(cachedResponse{
                Status:      http.StatusOK,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        rec.buf.Bytes(),
            })
            if err == nil {
                err = rdb.Set(context.Background(), key, entry, cfg.TTL).Err()
            }
            if err != nil {
                logrus.WithError(err).WithField("key", key).Warn("cache store failed")
            }
            return nil
        }
    }
}

// InvalidateOnWrite bumps the cache generation after every successful
// request through it that is not cached itself, so queue state changes
// show up on the next read.
func InvalidateOnWrite(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            err := next(c)
            if cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return err
            }
            if status := c.Response().Status; err == nil && status >= 200 && status < 300 {
                if ierr := rdb.Incr(context.Background(), generationKey(cfg)).Err(); ierr != nil {
                    logrus.WithError(ierr).Warn("cache invalidation failed")
                }
            }
            return err
        }
    }
}
