package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the chatqueue server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Poller   PollerConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BackendConfig describes the OpenAI-compatible completion endpoint the
// poller calls. Timeout of zero means no client-side timeout; a hung
// backend call stalls the queue until it returns.
type BackendConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type PollerConfig struct {
	IdleDelay           time.Duration
	HistoryTokenCeiling int
}

// AdminConfig gates the /admin endpoints. TokenHash is a bcrypt hash of
// the admin bearer token; empty disables the admin surface.
type AdminConfig struct {
	TokenHash      string
	RequestsPerMin int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CHATQ_PORT", 8080),
			Env:  envString("CHATQ_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Backend: BackendConfig{
			BaseURL:     os.Getenv("CHATQ_BACKEND_URL"),
			APIKey:      os.Getenv("CHATQ_BACKEND_API_KEY"),
			Model:       envString("CHATQ_BACKEND_MODEL", "gpt-3.5-turbo"),
			Temperature: envFloat("CHATQ_BACKEND_TEMPERATURE", 0.7),
			Timeout:     envDuration("CHATQ_BACKEND_TIMEOUT", 0),
		},
		Poller: PollerConfig{
			IdleDelay:           envDuration("CHATQ_POLL_IDLE_DELAY", 100*time.Millisecond),
			HistoryTokenCeiling: envInt("CHATQ_HISTORY_TOKEN_CEILING", 2048),
		},
		Admin: AdminConfig{
			TokenHash:      os.Getenv("CHATQ_ADMIN_TOKEN_HASH"),
			RequestsPerMin: envInt("CHATQ_ADMIN_REQUESTS_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("CHATQ_BACKEND_URL is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("CHATQ_BACKEND_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}

	if c.Backend.Temperature < 0 || c.Backend.Temperature > 2 {
		return fmt.Errorf("CHATQ_BACKEND_TEMPERATURE must be between 0 and 2, got %v", c.Backend.Temperature)
	}

	if c.Poller.IdleDelay <= 0 {
		return fmt.Errorf("CHATQ_POLL_IDLE_DELAY must be positive, got %v", c.Poller.IdleDelay)
	}
	if c.Poller.HistoryTokenCeiling <= 0 {
		return fmt.Errorf("CHATQ_HISTORY_TOKEN_CEILING must be positive, got %d", c.Poller.HistoryTokenCeiling)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
