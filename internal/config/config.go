package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // application environment (dev, test, prod)
	Port string // HTTP port to listen on

	DBDriver      string // mysql or sqlite
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	DBPath        string // sqlite file path
	DBAutoMigrate bool   // apply migrations at serve start

	PaystackSecret  string // webhook HMAC key
	JWTSecret       string // staff access tokens
	QRSecret        string // redeemable token payloads
	AccessTTLMin    int    // staff access token lifetime in minutes
	BcryptCost      int    // cost used by hash-pin
	StaffDirectory  string // YAML staff directory path
	StrictAmount    bool   // block confirmation on amount mismatch
	AmountScale     int64  // gateway minor units per major unit
	PriceOverrides  map[string]int64
	RabbitURL       string
	NotifyQueue     string
	NotifyBuffer    int
	NotifyWorkers   int
	NotificationLog string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	ShutdownTimeout time.Duration

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// LoadDotEnv reads .env into the process environment when present.  Values
// already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Printf("config: could not load %s: %v", p, err)
		}
	}
}

// LoadFrom builds a Config from a lookup function (os.LookupEnv in
// production) and the raw environment, which is only scanned for PRICE_*
// overrides.  It returns the first problem found.
func LoadFrom(lookup func(string) (string, bool), environ []string) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Env:             e.str("APP_ENV", "dev"),
		Port:            e.str("APP_PORT", "8080"),
		DBDriver:        strings.ToLower(e.str("DB_DRIVER", "mysql")),
		DBPass:          e.str("DB_PASS", ""),
		DBPath:          e.str("DB_PATH", "convention.db"),
		DBAutoMigrate:   e.bool("DB_AUTO_MIGRATE", false),
		PaystackSecret:  e.must("PAYSTACK_SECRET_KEY"),
		JWTSecret:       e.must("JWT_SECRET"),
		QRSecret:        e.must("QR_SIGNING_SECRET"),
		AccessTTLMin:    e.int("ACCESS_TOKEN_TTL_MIN", 720),
		BcryptCost:      e.int("BCRYPT_COST", 10),
		StaffDirectory:  e.str("STAFF_DIRECTORY_PATH", "staff.yaml"),
		StrictAmount:    e.bool("STRICT_AMOUNT_CHECK", false),
		AmountScale:     int64(e.int("GATEWAY_AMOUNT_SCALE", 100)),
		RabbitURL:       e.str("RABBITMQ_URL", e.str("AMQP_URL", "")),
		NotifyQueue:     e.str("NOTIFY_QUEUE", "notifications.outbound"),
		NotifyBuffer:    e.int("NOTIFY_BUFFER", 256),
		NotifyWorkers:   e.int("NOTIFY_WORKERS", 2),
		NotificationLog: e.str("NOTIFICATION_LOG", "logs/notifications.log"),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		LogFile:         e.str("LOG_FILE", ""),
		LogMaxSizeMB:    e.int("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups:   e.int("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:   e.int("LOG_MAX_AGE_DAYS", 14),
		ShutdownTimeout: e.dur("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	switch cfg.DBDriver {
	case "mysql":
		cfg.DBUser = e.must("DB_USER")
		cfg.DBHost = e.must("DB_HOST")
		cfg.DBPort = e.str("DB_PORT", "3306")
		cfg.DBName = e.must("DB_NAME")
	case "sqlite":
	default:
		e.fail(fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver))
	}
	if cfg.AmountScale < 1 {
		e.fail(fmt.Errorf("GATEWAY_AMOUNT_SCALE must be positive"))
	}
	cfg.Redis = e.redisConfig()
	cfg.RateLimit = e.rateLimit()
	cfg.Cache = e.cache()
	cfg.PriceOverrides = e.prices(environ)
	return cfg, e.err
}

// env accumulates the first error so Load reads like a flat list.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// must retrieves the value of a required environment variable.
func (e *env) must(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (e *env) int(key string, def int) int {
	s := e.str(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		e.fail(fmt.Errorf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	s := e.str(key, "")
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		e.fail(fmt.Errorf("invalid bool for %s: %q", key, s))
		return def
	}
	return b
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	s := e.str(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		e.fail(fmt.Errorf("invalid duration for %s: %q", key, s))
		return def
	}
	return d
}

// prices collects PRICE_<NAME>=<int> entries, keyed by NAME.
func (e *env) prices(environ []string) map[string]int64 {
	out := map[string]int64{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "PRICE_") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			e.fail(fmt.Errorf("invalid price for %s: %q", k, v))
			continue
		}
		out[strings.TrimPrefix(k, "PRICE_")] = n
	}
	return out
}
