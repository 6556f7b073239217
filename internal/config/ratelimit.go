package config

import "time"

// RateLimitConfig bounds how often one customer may call queue
// operations.  Burst calls are allowed at once, after which one call is
// granted per Every.
type RateLimitConfig struct {
    Enabled bool
    Burst   int
    Every   time.Duration
    Prefix  string
}

// KeyTTL is how long an idle limiter key must live: the time a drained
// bucket needs to refill completely.
func (c RateLimitConfig) KeyTTL() time.Duration {
    return time.Duration(c.Burst+1) * c.Every
}

func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Burst:   envInt("RATE_LIMIT_BURST", 10),
        Every:   envDur("RATE_LIMIT_EVERY", 2*time.Second),
        Prefix:  envStr("RATE_LIMIT_PREFIX", "hhq:rl"),
    }
    if cfg.Burst < 1 {
        cfg.Burst = 1
    }
    if cfg.Every <= 0 {
        cfg.Every = time.Second
    }
    return cfg
}
