// Package config builds process configuration from the environment so main
// stays lean. Everything here is read once at startup; nothing re-reads the
// environment at request time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Addr          string
	JWTSigningKey string

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
}

// RedisConfig captures the shared counter store connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig carries rate limiter toggles and startup inputs.
type RateLimitConfig struct {
	// Disabled short-circuits the whole subsystem (tests, demos). The store
	// selector must never dial Redis when this is set.
	Disabled bool
	// DevMode activates the loopback skip predicate on development policies.
	DevMode bool
	// Allowlist holds source IPs or CIDRs exempt from limiting entirely.
	Allowlist []string
	// Overrides adjusts per-class policy numbers, keyed by class name.
	Overrides map[string]PolicyOverride
}

// PolicyOverride replaces a policy's numbers without touching its identity.
type PolicyOverride struct {
	Max    int
	Window time.Duration
}

// EventsConfig points the observability event sink at Kafka. Empty brokers
// means events only go to the structured log.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          envOr("GATEKEEPER_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Disabled: os.Getenv("RATELIMIT_DISABLED") == "true",
			DevMode:  os.Getenv("RATELIMIT_DEV_MODE") == "true",
		},
		Events: EventsConfig{
			KafkaTopic: envOr("KAFKA_EVENTS_TOPIC", "gatekeeper.ratelimit.events"),
		},
	}

	if v := os.Getenv("RATELIMIT_ALLOWLIST"); v != "" {
		for _, entry := range strings.Split(v, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				cfg.RateLimit.Allowlist = append(cfg.RateLimit.Allowlist, entry)
			}
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.Events.KafkaBrokers = append(cfg.Events.KafkaBrokers, broker)
			}
		}
	}

	overrides, err := overridesFromEnv(os.Environ())
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimit.Overrides = overrides

	return cfg, nil
}

// overridesFromEnv parses RATELIMIT_OVERRIDE_<CLASS>=<max>/<window> entries,
// e.g. RATELIMIT_OVERRIDE_GENERAL_API=200/30s. Malformed entries are a
// startup error, not something to guess around.
func overridesFromEnv(environ []string) (map[string]PolicyOverride, error) {
	const prefix = "RATELIMIT_OVERRIDE_"

	overrides := make(map[string]PolicyOverride)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		class := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", "-"))

		maxPart, windowPart, ok := strings.Cut(value, "/")
		if !ok {
			return nil, fmt.Errorf("policy override %s: want <max>/<window>, got %q", name, value)
		}
		max, err := strconv.Atoi(maxPart)
		if err != nil || max <= 0 {
			return nil, fmt.Errorf("policy override %s: max must be a positive integer, got %q", name, maxPart)
		}
		window, err := time.ParseDuration(windowPart)
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("policy override %s: bad window %q", name, windowPart)
		}
		overrides[class] = PolicyOverride{Max: max, Window: window}
	}
	return overrides, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
