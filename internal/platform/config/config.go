package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Storage and broker URLs are
// optional: an empty value selects the in-memory implementation so local
// development and tests run without external services.
type Config struct {
	Addr        string
	Environment string

	// DatabaseURL selects the Postgres-backed stores when set.
	DatabaseURL string

	// Redis backs the distributed generation rate limiter when configured.
	Redis RedisConfig

	// KafkaBrokers enables the best-effort audit mirror when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// JWTSigningKey validates inbound bearer tokens. Tokens are issued by
	// the identity collaborator, never by this subsystem.
	JWTSigningKey string

	// AuditAnonymizationKey keys the pseudonymous actor tokens written by
	// data-deletion anonymization. Changing it changes all future tokens,
	// so it must be stable per deployment.
	AuditAnonymizationKey string

	RequestTimeout time.Duration
}

// RedisConfig holds connection settings for the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:                  getenv("EVERKEEP_ADDR", ":8080"),
		Environment:           getenv("EVERKEEP_ENV", "development"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		KafkaTopic:            getenv("KAFKA_AUDIT_TOPIC", "everkeep.audit"),
		JWTSigningKey:         getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AuditAnonymizationKey: getenv("AUDIT_ANONYMIZATION_KEY", "dev-anonymization-key"),
		RequestTimeout:        30 * time.Second,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
