package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "zero pool size",
			mutate: func(cfg *Config) {
				cfg.PoolSize = 0
			},
			wantErr: "pool size",
		},
		{
			name: "zero rate limit",
			mutate: func(cfg *Config) {
				cfg.RateLimit = 0
			},
			wantErr: "rate limit",
		},
		{
			name: "negative rate period",
			mutate: func(cfg *Config) {
				cfg.RatePeriod = -time.Second
			},
			wantErr: "rate period",
		},
		{
			name: "zero attempts",
			mutate: func(cfg *Config) {
				cfg.MaxAttempts = 0
			},
			wantErr: "max attempts",
		},
		{
			name: "backoff exceeds cap",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "zero page timeout",
			mutate: func(cfg *Config) {
				cfg.PageTimeout = 0
			},
			wantErr: "page timeout",
		},
		{
			name: "empty data dir",
			mutate: func(cfg *Config) {
				cfg.DataDir = ""
			},
			wantErr: "data directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"pool_size": 5, "rate_limit": 3, "headless": false}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.PoolSize != 5 {
		t.Fatalf("pool size = %d, want 5", cfg.PoolSize)
	}
	if cfg.RateLimit != 3 {
		t.Fatalf("rate limit = %d, want 3", cfg.RateLimit)
	}
	if cfg.Headless {
		t.Fatalf("headless should be overridden to false")
	}
	// untouched keys keep their defaults
	if cfg.MaxAttempts != DefaultConfig().MaxAttempts {
		t.Fatalf("max attempts changed unexpectedly")
	}
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SCRAPER_TEST_INT", "7")
	value, ok, err := EnvInt("SCRAPER_TEST_INT")
	if err != nil || !ok || value != 7 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (7, true, nil)", value, ok, err)
	}

	t.Setenv("SCRAPER_TEST_INT", "seven")
	if _, _, err := EnvInt("SCRAPER_TEST_INT"); err == nil {
		t.Fatalf("EnvInt should reject non-integer value")
	}

	t.Setenv("SCRAPER_TEST_BOOL", "true")
	flag, ok, err := EnvBool("SCRAPER_TEST_BOOL")
	if err != nil || !ok || !flag {
		t.Fatalf("EnvBool = (%v, %v, %v), want (true, true, nil)", flag, ok, err)
	}

	if _, ok := EnvString("SCRAPER_TEST_UNSET"); ok {
		t.Fatalf("EnvString should report unset variable")
	}
}
