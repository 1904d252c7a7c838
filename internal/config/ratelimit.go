package config

import "time"

// RateLimitConfig drives the token bucket on staff routes.  Capacity tokens
// refill at RefillTokens per RefillInterval.  The same numbers configure the
// in-process limiter used when Redis is unavailable.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user, route, ip_route, user_route, ip_user_route
	Prefix         string
	Debug          bool
}

func (e *env) rateLimit() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        e.bool("RATE_LIMIT_ENABLED", true),
		Capacity:       e.int("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   e.int("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.dur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            e.dur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    e.str("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         e.str("RATE_LIMIT_PREFIX", "rl"),
		Debug:          e.bool("RATE_LIMIT_DEBUG", false),
	}
	if b := e.int("RATE_LIMIT_BURST", -1); b > 0 {
		rl.Capacity = b
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}

// PerSecond is the sustained refill rate in tokens per second.
func (rl RateLimitConfig) PerSecond() float64 {
	return float64(rl.RefillTokens) / rl.RefillInterval.Seconds()
}
