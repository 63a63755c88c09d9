package config

import (
	"os"
	"testing"
	"time"
)

var configEnv = []string{
	"APP_ENV", "APP_HTTP_ADDR", "METRICS_ADDR", "STORE_TYPE", "DB_DSN",
	"REDIS_URL", "CACHE_TTL", "ADMIN_API_KEY", "RATE_LIMIT_PER_IP",
	"AUDIT_QUEUE_SIZE", "SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		os.Unsetenv(key)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr=':8080', got '%s'", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("Expected MetricsAddr=':9090', got '%s'", cfg.MetricsAddr)
	}
	if cfg.StoreType != "postgres" {
		t.Errorf("Expected StoreType='postgres', got '%s'", cfg.StoreType)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("Expected CacheTTL=5m, got %v", cfg.CacheTTL)
	}
	if cfg.RedisURL != "" {
		t.Errorf("Expected empty RedisURL, got '%s'", cfg.RedisURL)
	}
	if cfg.RateLimitPerIP != 100 {
		t.Errorf("Expected RateLimitPerIP=100, got %d", cfg.RateLimitPerIP)
	}
	if cfg.AuditQueueSize != 256 {
		t.Errorf("Expected AuditQueueSize=256, got %d", cfg.AuditQueueSize)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("Expected ShutdownTimeout=15s, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("RATE_LIMIT_PER_IP", "200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("Expected HTTPAddr=':9999', got '%s'", cfg.HTTPAddr)
	}
	if cfg.StoreType != "memory" {
		t.Errorf("Expected StoreType='memory', got '%s'", cfg.StoreType)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Unexpected RedisURL '%s'", cfg.RedisURL)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("Expected CacheTTL=30s, got %v", cfg.CacheTTL)
	}
	if cfg.RateLimitPerIP != 200 {
		t.Errorf("Expected RateLimitPerIP=200, got %d", cfg.RateLimitPerIP)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		AppEnv:      "dev",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		StoreType:   "memory",
		CacheTTL:    time.Minute,
		AdminAPIKey: "admin-123",
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid config passes",
			mutate: func(*Config) {},
		},
		{
			name:      "bad store type",
			mutate:    func(c *Config) { c.StoreType = "sqlite" },
			wantField: "STORE_TYPE",
		},
		{
			name: "postgres without DSN",
			mutate: func(c *Config) {
				c.StoreType = "postgres"
				c.DatabaseDSN = ""
			},
			wantField: "DB_DSN",
		},
		{
			name:      "empty HTTP address",
			mutate:    func(c *Config) { c.HTTPAddr = "" },
			wantField: "APP_HTTP_ADDR",
		},
		{
			name:      "empty metrics address",
			mutate:    func(c *Config) { c.MetricsAddr = "" },
			wantField: "METRICS_ADDR",
		},
		{
			name:      "non-positive cache TTL",
			mutate:    func(c *Config) { c.CacheTTL = 0 },
			wantField: "CACHE_TTL",
		},
		{
			name:      "default admin key outside dev",
			mutate:    func(c *Config) { c.AppEnv = "prod" },
			wantField: "ADMIN_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			verr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Validate() field = %s, want %s", verr.Field, tt.wantField)
			}
		})
	}
}
