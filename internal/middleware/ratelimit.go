package middleware

import (
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/haunted-house-queue/internal/config"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// gcraScript keeps one theoretical arrival time per key.  A call is
// admitted while the arrival time stays within burst*every of now.
// Returns {allowed, remaining, retry_after_ms}.
var gcraScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local every = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tat = tonumber(redis.call('GET', KEYS[1]))
if not tat or tat < now then
    tat = now
end
local next_tat = tat + every
local excess = next_tat - now - burst * every
if excess > 0 then
    return {0, 0, excess}
end
redis.call('SET', KEYS[1], next_tat, 'PX', ttl)
return {1, math.floor((burst * every - (next_tat - now)) / every), 0}
`)

// NewRateLimiter throttles queue operations per customer, or per client
// IP for unauthenticated callers.  Redis failures let the request through.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    every := cfg.Every.Milliseconds()
    ttl := cfg.KeyTTL().Milliseconds()

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := rateKey(cfg.Prefix, c)
            res, err := gcraScript.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Burst, every, ttl).Int64Slice()
            if err != nil || len(res) != 3 {
                logrus.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
            if res[0] == 1 {
                return next(c)
            }

            secs := (res[2] + 999) / 1000
            h.Set("Retry-After", strconv.FormatInt(secs, 10))
            return utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED",
                fmt.Sprintf("too many requests, retry in %ds", secs))
        }
    }
}

func rateKey(prefix string, c echo.Context) string {
    if sid, ok := StudentID(c); ok {
        return prefix + ":student:" + sid
    }
    if id, ok := UserID(c); ok {
        return prefix + ":user:" + strconv.FormatUint(id, 10)
    }
    return prefix + ":ip:" + c.RealIP()
}
