// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/snipekit/engine/internal/store"
)

// Config holds all configuration values for the sniper engine.
type Config struct {
	// Bridge process (local request executor)
	BridgeURL     string
	SessionCookie string

	// Search endpoints, in configured order. Entries prefixed with "!"
	// are kept (they hold their round-robin slot) but disabled.
	SearchEndpoints []store.SearchEndpoint

	// Proxy pools
	ScrapingProxies []string
	CheckoutProxies []string

	// Polling
	PollInterval time.Duration

	// Sniping
	AutobuyEnabled  bool
	SimulationMode  bool
	CountdownWindow time.Duration
	RulesPath       string

	// Checkout
	VerificationEnabled   bool
	VerificationThreshold float64
	DeliveryMode          string // "home" or "dropoff"
	PickupLatitude        float64
	PickupLongitude       float64
	PickupCountryCode     string

	// Events hub
	EventsListenAddr string

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		BridgeURL:     getEnv("BRIDGE_URL", "http://127.0.0.1:37421"),
		SessionCookie: getEnv("SESSION_COOKIE", ""),

		SearchEndpoints: parseEndpoints(getEnv("SEARCH_URLS", "")),

		ScrapingProxies: getEnvList("SCRAPING_PROXIES"),
		CheckoutProxies: getEnvList("CHECKOUT_PROXIES"),

		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)) * time.Second,

		AutobuyEnabled:  getEnvBool("AUTOBUY_ENABLED", false),
		SimulationMode:  getEnvBool("SIMULATION_MODE", true),
		CountdownWindow: time.Duration(getEnvInt("COUNTDOWN_SECONDS", 3)) * time.Second,
		RulesPath:       getEnv("SNIPER_RULES_PATH", "./snipers.json"),

		VerificationEnabled:   getEnvBool("VERIFICATION_ENABLED", false),
		VerificationThreshold: getEnvFloat("VERIFICATION_THRESHOLD", 100),
		DeliveryMode:          getEnv("DELIVERY_MODE", "home"),
		PickupLatitude:        getEnvFloat("PICKUP_LATITUDE", 0),
		PickupLongitude:       getEnvFloat("PICKUP_LONGITUDE", 0),
		PickupCountryCode:     getEnv("PICKUP_COUNTRY_CODE", "GB"),

		EventsListenAddr: getEnv("EVENTS_LISTEN_ADDR", "127.0.0.1:37422"),

		EnableTUI:     getEnvBool("ENABLE_TUI", true),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.BridgeURL == "" {
		return fmt.Errorf("BRIDGE_URL is required")
	}

	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be at least 1")
	}

	if c.CountdownWindow <= 0 {
		return fmt.Errorf("COUNTDOWN_SECONDS must be positive")
	}

	if c.DeliveryMode != "home" && c.DeliveryMode != "dropoff" {
		return fmt.Errorf("DELIVERY_MODE must be home or dropoff, got %q", c.DeliveryMode)
	}

	if c.DeliveryMode == "dropoff" && c.PickupLatitude == 0 && c.PickupLongitude == 0 {
		return fmt.Errorf("dropoff delivery requires PICKUP_LATITUDE and PICKUP_LONGITUDE")
	}

	return nil
}

// MaskedSessionCookie returns the session cookie with most characters hidden for logging.
func (c *Config) MaskedSessionCookie() string {
	return maskSecret(c.SessionCookie)
}

// EnabledEndpoints returns only the enabled search endpoints, preserving
// configured order. Indexes into the full list are what the proxy pool keys
// on, so callers that need the round-robin index use SearchEndpoints instead.
func (c *Config) EnabledEndpoints() []store.SearchEndpoint {
	out := make([]store.SearchEndpoint, 0, len(c.SearchEndpoints))
	for _, ep := range c.SearchEndpoints {
		if ep.Enabled {
			out = append(out, ep)
		}
	}
	return out
}

// parseEndpoints splits a comma- or newline-separated endpoint list.
// A "!" prefix marks an endpoint disabled without losing its slot.
func parseEndpoints(raw string) []store.SearchEndpoint {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	endpoints := make([]store.SearchEndpoint, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		ep := store.SearchEndpoint{URL: f, Enabled: true}
		if strings.HasPrefix(f, "!") {
			ep.URL = strings.TrimPrefix(f, "!")
			ep.Enabled = false
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList retrieves a comma- or newline-separated environment variable.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
