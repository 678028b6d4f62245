package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds scraper configuration. The core treats it as an immutable
// snapshot for the duration of one run.
type Config struct {
	BaseURL string `json:"base_url"`

	PoolSize     int `json:"pool_size"`
	DegradeAfter int `json:"degrade_after"`

	RateLimit  int           `json:"rate_limit"`
	RatePeriod time.Duration `json:"rate_period"`

	MaxAttempts     int           `json:"max_attempts"`
	RetryBackoff    time.Duration `json:"retry_backoff"`
	RetryBackoffMax time.Duration `json:"retry_backoff_max"`

	PageTimeout time.Duration `json:"page_timeout"`

	DataDir         string        `json:"data_dir"`
	DebugDir        string        `json:"debug_dir"`
	BackupRetention time.Duration `json:"backup_retention"`

	Headless  bool   `json:"headless"`
	Stealth   bool   `json:"stealth"`
	UserAgent string `json:"user_agent"`

	// Teams restricts the team-stats stage to the named clubs. Empty means
	// every team resolved in the teams stage.
	Teams []string `json:"teams"`

	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
}

// DefaultConfig returns conservative defaults for the fbref target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://fbref.com/en/comps/9/Premier-League-Stats",
		PoolSize:        3,
		DegradeAfter:    2,
		RateLimit:       10,
		RatePeriod:      60 * time.Second,
		MaxAttempts:     3,
		RetryBackoff:    2 * time.Second,
		RetryBackoffMax: 30 * time.Second,
		PageTimeout:     30 * time.Second,
		DataDir:         "data",
		DebugDir:        "debug",
		BackupRetention: 30 * 24 * time.Hour,
		Headless:        true,
		Stealth:         true,
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}
	if c.DegradeAfter <= 0 {
		return fmt.Errorf("degrade threshold must be positive")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.RatePeriod <= 0 {
		return fmt.Errorf("rate period must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.DebugDir == "" {
		return fmt.Errorf("debug directory cannot be empty")
	}
	if c.BackupRetention < 0 {
		return fmt.Errorf("backup retention cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// LoadFile overlays values from a JSON config file onto c. A missing file is
// not an error, so a local config.json stays optional.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, true, nil
}

// EnvBool reads a boolean environment override.
func EnvBool(key string) (bool, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, true, nil
}
