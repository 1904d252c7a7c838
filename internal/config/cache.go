package config

import (
	"strings"
	"time"
)

// CacheConfig controls the Redis response cache used for pricing quotes.
// When Enabled is false or no Redis client is configured, caching is off.
// KeyStrategy is "route_query" (path plus sorted query) or "route" (path
// only).
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

func (e *env) cache() CacheConfig {
	return CacheConfig{
		Enabled:      e.bool("CACHE_ENABLED", true),
		Methods:      parseMethods(e.str("CACHE_METHODS", "GET")),
		TTL:          e.dur("CACHE_TTL", 5*time.Minute),
		KeyStrategy:  e.str("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       e.str("CACHE_PREFIX", "pricing"),
		MaxBodyBytes: e.int("CACHE_MAX_BODY_BYTES", 64<<10),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
