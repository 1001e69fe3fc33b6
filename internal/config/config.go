// Package config resolves the service configuration from environment
// variables, with defaults suitable for local development.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable of the matchmaking service.
type Config struct {
	Port               int      // PORT, default 3000
	RedisURL           string   // REDIS_URL, default redis://localhost:6379
	DiscoveryServerURL string   // DISCOVERY_SERVER_URL, chat server enumeration endpoint
	PublicURL          string   // RENDER_EXTERNAL_URL, this instance's public URL
	NATSURL            string   // NATS_URL; when set, the bus runs on NATS instead of Redis pub/sub
	PopularDenylist    []string // POPULAR_DENYLIST, csv of tags hidden from the popularity ranking
	Maintenance        bool     // MAINTENANCE_MODE, start in maintenance
}

// FromEnv reads the environment and returns the resolved configuration.
func FromEnv() Config {
	cfg := Config{
		Port:     3000,
		RedisURL: "redis://localhost:6379",
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	cfg.DiscoveryServerURL = os.Getenv("DISCOVERY_SERVER_URL")
	cfg.PublicURL = os.Getenv("RENDER_EXTERNAL_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	if v := os.Getenv("POPULAR_DENYLIST"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			// Denied tags are compared in canonical (uppercased) form.
			tag = strings.ToUpper(strings.TrimSpace(tag))
			if tag != "" {
				cfg.PopularDenylist = append(cfg.PopularDenylist, tag)
			}
		}
	}

	if v := os.Getenv("MAINTENANCE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Maintenance = b
		}
	}

	return cfg
}
