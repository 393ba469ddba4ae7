package config

import (
	"testing"
	"time"

	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ChunkSize != 2000 {
		t.Errorf("ChunkSize = %d, want 2000", cfg.Database.ChunkSize)
	}
	if cfg.Redis.LockKey != "reconciliation:run" {
		t.Errorf("LockKey = %q, want reconciliation:run", cfg.Redis.LockKey)
	}
	if cfg.Redis.LockTTL != 30*time.Minute {
		t.Errorf("LockTTL = %v, want 30m", cfg.Redis.LockTTL)
	}
	if cfg.Report.OutputDir != "reports" {
		t.Errorf("OutputDir = %q, want reports", cfg.Report.OutputDir)
	}
	if cfg.Report.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.Report.RetryAttempts)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
	if cfg.UsePubSub() {
		t.Error("UsePubSub() = true with no project configured")
	}
	if cfg.UseRedisLock() {
		t.Error("UseRedisLock() = true with no redis address configured")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RECONCILER_DATABASE_DSN", "user:pass@tcp(db:3306)/recon")
	t.Setenv("RECONCILER_DATABASE_CHUNK_SIZE", "500")
	t.Setenv("RECONCILER_REDIS_ADDR", "redis:6379")
	t.Setenv("RECONCILER_PUBSUB_PROJECT_ID", "recon-prod")
	t.Setenv("RECONCILER_REPORT_RETRY_BACKOFF", "5s")
	t.Setenv("RECONCILER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.DSN != "user:pass@tcp(db:3306)/recon" {
		t.Errorf("DSN = %q, want the env value", cfg.Database.DSN)
	}
	if cfg.Database.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.Database.ChunkSize)
	}
	if cfg.Report.RetryBackoff != 5*time.Second {
		t.Errorf("RetryBackoff = %v, want 5s", cfg.Report.RetryBackoff)
	}
	if !cfg.UseRedisLock() {
		t.Error("UseRedisLock() = false with redis address set")
	}
	if !cfg.UsePubSub() {
		t.Error("UsePubSub() = false with project set")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if !apperrors.IsCode(err, apperrors.CodeInvalidConfig) {
		t.Fatalf("got %v, want invalid_config", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode apperrors.ErrorCode
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, apperrors.CodeMissingConfig},
		{"zero chunk size", func(c *Config) { c.Database.ChunkSize = 0 }, apperrors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{DSN: "user:pass@tcp(db)/recon", ChunkSize: 2000},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !apperrors.IsCode(err, tt.wantCode) {
				t.Errorf("Validate() = %v, want code %v", err, tt.wantCode)
			}
		})
	}
}

func TestConfig_StoreConfigOverlay(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:          "user:pass@tcp(db)/recon",
			MaxOpenConns: 10,
			ChunkSize:    250,
		},
	}

	sc := cfg.StoreConfig()
	if sc.DSN != cfg.Database.DSN {
		t.Errorf("DSN = %q, want %q", sc.DSN, cfg.Database.DSN)
	}
	if sc.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d, want 10", sc.MaxOpenConns)
	}
	if sc.ChunkSize != 250 {
		t.Errorf("ChunkSize = %d, want 250", sc.ChunkSize)
	}
	// Unset fields keep the store defaults.
	if sc.MaxIdleConns < 1 {
		t.Errorf("MaxIdleConns = %d, want the default", sc.MaxIdleConns)
	}
}

func TestConfig_LoggerConfigOverlay(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "json"}}

	lc := cfg.LoggerConfig()
	if lc.Level != logger.DebugLevel {
		t.Errorf("Level = %v, want debug", lc.Level)
	}
	if lc.Format != logger.JSONFormat {
		t.Errorf("Format = %v, want json", lc.Format)
	}
}

func TestConfig_PubSubCredentials(t *testing.T) {
	cfg := &Config{}
	data, err := cfg.PubSubCredentials()
	if err != nil || data != nil {
		t.Errorf("PubSubCredentials() = (%v, %v), want (nil, nil) when unconfigured", data, err)
	}

	cfg.PubSub.CredentialsFile = "/nonexistent/key.json"
	if _, err := cfg.PubSubCredentials(); !apperrors.IsCode(err, apperrors.CodeInvalidConfig) {
		t.Errorf("got %v, want invalid_config for a missing key file", err)
	}
}
