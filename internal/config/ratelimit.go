package config

import "time"

// RateLimitConfig sizes the per-caller token bucket on rating submission.
// A caller may submit Capacity ratings in a burst and regains RefillTokens
// every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this
	KeyStrategy    string        // ip, user, route or an underscore joined mix
	Prefix         string
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       max(envInt("RATE_LIMIT_CAPACITY", 10), 1),
		RefillTokens:   max(envInt("RATE_LIMIT_REFILL_TOKENS", 1), 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rating:rl"),
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// a bucket must outlive a few refills or it resets to full too early
	cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
	return cfg
}
