package config

import "time"

// CacheConfig controls the Redis response cache in front of the public
// course catalogue.  KeyStrategy picks the request parts hashed into the
// key: route, method_route, method_route_query or route_query.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int // larger responses are served but not stored
}

func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      envSet("CACHE_METHODS", "GET"),
		TTL:          envDur("CACHE_TTL", time.Minute),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "rating:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}
