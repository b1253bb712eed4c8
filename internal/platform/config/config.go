package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean; defaults suit local development.
type Config struct {
	Addr       string
	AdminToken string

	Registry UpstreamConfig
	Feed     UpstreamConfig
	Lawyer   UpstreamConfig

	// RequestDeadline bounds one whole aggregation including retries.
	RequestDeadline time.Duration

	EntityCacheTTL time.Duration
	DateCacheTTL   time.Duration

	Redis    RedisConfig
	Postgres PostgresConfig

	// IngestEnabled turns on the daily feed ingestion worker.
	IngestEnabled bool
}

// UpstreamConfig holds per-source client settings.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig holds the optional Redis cache backing store settings.
// An empty URL means the in-memory cache is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the optional insolvency archive settings.
// An empty URL means the in-memory archive is used instead.
type PostgresConfig struct {
	URL string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:       envStr("KONKURS_ADDR", ":8080"),
		AdminToken: envStr("KONKURS_ADMIN_TOKEN", ""),
		Registry: UpstreamConfig{
			BaseURL: envStr("CVR_URL", "http://cvr:8000"),
			Timeout: envDuration("CVR_TIMEOUT", 5*time.Second),
		},
		Feed: UpstreamConfig{
			BaseURL: envStr("STATSTIDENDE_URL", "http://statstidende:8000"),
			Timeout: envDuration("STATSTIDENDE_TIMEOUT", 10*time.Second),
		},
		Lawyer: UpstreamConfig{
			BaseURL: envStr("ADVOKAT_URL", "http://advokatnoeglen:8000"),
			Timeout: envDuration("ADVOKAT_TIMEOUT", 5*time.Second),
		},
		RequestDeadline: envDuration("KONKURS_REQUEST_DEADLINE", 25*time.Second),
		EntityCacheTTL:  envDuration("KONKURS_ENTITY_CACHE_TTL", 5*time.Minute),
		DateCacheTTL:    envDuration("KONKURS_DATE_CACHE_TTL", 30*time.Minute),
		Redis: RedisConfig{
			URL:          envStr("REDIS_URL", ""),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		IngestEnabled: os.Getenv("KONKURS_INGEST_ENABLED") == "true",
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
