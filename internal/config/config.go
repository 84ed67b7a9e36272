// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
)

// Config holds all client configuration.
type Config struct {
	// BackendURL is the base URL of the support backend, e.g. http://localhost:8000.
	BackendURL string
	// Priority is attached to every outbound query.
	Priority domain.Priority
	// ChannelDisabled forces discrete calls even when the backend is reachable.
	ChannelDisabled bool
	// DialTimeout bounds the persistent-channel open attempt.
	DialTimeout time.Duration
	// ReplyTimeout bounds the wait for a persistent-channel reply.
	ReplyTimeout time.Duration
	// RequestTimeout bounds a single discrete call.
	RequestTimeout time.Duration
	// AnalyticsInterval is the fixed snapshot polling interval.
	AnalyticsInterval time.Duration
	History           HistoryConfig
	LogLevel          string
}

// HistoryConfig controls the local conversation transcript.
type HistoryConfig struct {
	Enabled bool
	DBPath  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BackendURL:        getEnv("BACKEND_URL", "http://localhost:8000"),
		Priority:          domain.Priority(getEnv("DESKCHAT_PRIORITY", string(domain.PriorityMedium))),
		ChannelDisabled:   getEnvBool("WS_DISABLED", false),
		DialTimeout:       getEnvDuration("DIAL_TIMEOUT", 5*time.Second),
		ReplyTimeout:      getEnvDuration("REPLY_TIMEOUT", 30*time.Second),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		AnalyticsInterval: getEnvDuration("ANALYTICS_INTERVAL", 30*time.Second),
		History: HistoryConfig{
			Enabled: !getEnvBool("HISTORY_DISABLED", false),
			DBPath:  getEnv("HISTORY_DB_PATH", "./data/deskchat.db"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("BACKEND_URL must start with http:// or https://")
	}
	if !c.Priority.Valid() {
		return fmt.Errorf("DESKCHAT_PRIORITY must be one of low, medium, high")
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("REPLY_TIMEOUT must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.AnalyticsInterval <= 0 {
		return fmt.Errorf("ANALYTICS_INTERVAL must be > 0")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("HISTORY_DB_PATH cannot be empty when history is enabled")
	}
	return nil
}

// ChannelURL derives the persistent-channel endpoint from BackendURL.
func (c *Config) ChannelURL(sessionID string) string {
	base := strings.TrimSuffix(c.BackendURL, "/")
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/" + sessionID
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are read as seconds.
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
