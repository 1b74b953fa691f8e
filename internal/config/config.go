package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/nsstatus/pkg/runcmd"
)

// Config holds all configuration for the nsstatus server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Neuroscout NeuroscoutConfig
	Display    DisplayConfig
}

type ServerConfig struct {
	Port      int
	Env       string
	RateLimit int
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

// NeuroscoutConfig points at the upstream API. ServerRoot is the public
// origin used for bundle download links and defaults to BaseURL.
type NeuroscoutConfig struct {
	BaseURL    string
	ServerRoot string
	Token      string
	Timeout    time.Duration
}

// DisplayConfig controls how status pages are built. TrackerIdleTTL is how
// long an analysis may go unrequested before its tracker is dropped; Settle
// bounds how long a request waits for the fetches it triggered.
type DisplayConfig struct {
	Image           string
	ImageVersionTTL time.Duration
	FetchTimeout    time.Duration
	TrackerIdleTTL  time.Duration
	Settle          time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	baseURL := strings.TrimRight(os.Getenv("NEUROSCOUT_BASE_URL"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port:      envInt("NSSTATUS_PORT", 8080),
			Env:       envString("NSSTATUS_ENV", "development"),
			RateLimit: envInt("NSSTATUS_RATE_LIMIT", 60),
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
		Neuroscout: NeuroscoutConfig{
			BaseURL:    baseURL,
			ServerRoot: strings.TrimRight(envString("NEUROSCOUT_SERVER_ROOT", baseURL), "/"),
			Token:      os.Getenv("NEUROSCOUT_TOKEN"),
			Timeout:    envDuration("NEUROSCOUT_TIMEOUT", 30*time.Second),
		},
		Display: DisplayConfig{
			Image:           envString("NSSTATUS_IMAGE", runcmd.DefaultImage),
			ImageVersionTTL: envDuration("NSSTATUS_IMAGE_VERSION_TTL", 10*time.Minute),
			FetchTimeout:    envDurationSecs("NSSTATUS_FETCH_TIMEOUT_SECS", 60*time.Second),
			TrackerIdleTTL:  envDuration("NSSTATUS_TRACKER_IDLE_TTL", 30*time.Minute),
			Settle:          envDuration("NSSTATUS_VIEW_SETTLE", 2*time.Second),
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

	if c.Neuroscout.BaseURL == "" {
		return fmt.Errorf("NEUROSCOUT_BASE_URL is required")
	}
	if !isHTTPURL(c.Neuroscout.BaseURL) {
		return fmt.Errorf("NEUROSCOUT_BASE_URL must start with http:// or https://, got %q", c.Neuroscout.BaseURL)
	}
	if !isHTTPURL(c.Neuroscout.ServerRoot) {
		return fmt.Errorf("NEUROSCOUT_SERVER_ROOT must start with http:// or https://, got %q", c.Neuroscout.ServerRoot)
	}

	if c.Display.TrackerIdleTTL < 0 {
		return fmt.Errorf("NSSTATUS_TRACKER_IDLE_TTL must not be negative")
	}

	if c.Server.Env == "production" && c.Neuroscout.Token == "" {
		return fmt.Errorf("NEUROSCOUT_TOKEN is required when NSSTATUS_ENV is production")
	}

	return nil
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
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

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
