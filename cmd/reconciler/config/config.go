// Package config loads the application configuration from the environment
// and an optional config file, and builds the per-component configurations
// from it.
package config

import (
	"os"
	"strings"
	"time"

	"order-reconciliation-service/internal/report"
	"order-reconciliation-service/internal/store"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	PubSub   PubSubConfig
	Report   ReportConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds the relational store settings.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
	ChunkSize       int
}

// RedisConfig holds the run-lock backend settings. An empty address
// disables the distributed lock and falls back to the in-process one.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockKey  string
	LockTTL  time.Duration
}

// PubSubConfig holds the background-task transport settings. An empty
// project disables Pub/Sub and report jobs run on in-process goroutines.
type PubSubConfig struct {
	ProjectID       string
	TopicID         string
	SubscriptionID  string
	CredentialsFile string
}

// ReportConfig holds report generation settings.
type ReportConfig struct {
	OutputDir     string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from a .env file (if present), the environment
// with the RECONCILER_ prefix, and an optional config file.
func Load(cfgFile string) (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.ConfigError(apperrors.CodeInvalidConfig, "reading config file: "+err.Error())
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnectAttempts: v.GetInt("database.connect_attempts"),
			ChunkSize:       v.GetInt("database.chunk_size"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockKey:  v.GetString("redis.lock_key"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		PubSub: PubSubConfig{
			ProjectID:       v.GetString("pubsub.project_id"),
			TopicID:         v.GetString("pubsub.topic_id"),
			SubscriptionID:  v.GetString("pubsub.subscription_id"),
			CredentialsFile: v.GetString("pubsub.credentials_file"),
		},
		Report: ReportConfig{
			OutputDir:     v.GetString("report.output_dir"),
			RetryAttempts: v.GetInt("report.retry_attempts"),
			RetryBackoff:  v.GetDuration("report.retry_backoff"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.chunk_size", 2000)
	v.SetDefault("redis.lock_key", "reconciliation:run")
	v.SetDefault("redis.lock_ttl", 30*time.Minute)
	v.SetDefault("pubsub.topic_id", "reconciliation-reports")
	v.SetDefault("pubsub.subscription_id", "reconciliation-reports-worker")
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.retry_attempts", 3)
	v.SetDefault("report.retry_backoff", 2*time.Second)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the fields every run mode needs.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return apperrors.ConfigError(apperrors.CodeMissingConfig, "database DSN is required (RECONCILER_DATABASE_DSN)")
	}
	if c.Database.ChunkSize < 1 {
		return apperrors.ConfigError(apperrors.CodeInvalidConfig, "chunk size must be positive")
	}
	return nil
}

// StoreConfig builds the store configuration.
func (c *Config) StoreConfig() *store.Config {
	cfg := store.DefaultConfig()
	cfg.DSN = c.Database.DSN
	if c.Database.MaxOpenConns > 0 {
		cfg.MaxOpenConns = c.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns > 0 {
		cfg.MaxIdleConns = c.Database.MaxIdleConns
	}
	if c.Database.ConnMaxLifetime > 0 {
		cfg.ConnMaxLifetime = c.Database.ConnMaxLifetime
	}
	if c.Database.ConnectAttempts > 0 {
		cfg.ConnectAttempts = c.Database.ConnectAttempts
	}
	if c.Database.ChunkSize > 0 {
		cfg.ChunkSize = c.Database.ChunkSize
	}
	return cfg
}

// AssemblerConfig builds the report configuration.
func (c *Config) AssemblerConfig() *report.Config {
	cfg := report.DefaultConfig()
	if c.Report.OutputDir != "" {
		cfg.OutputDir = c.Report.OutputDir
	}
	if c.Report.RetryAttempts > 0 {
		cfg.RetryAttempts = c.Report.RetryAttempts
	}
	if c.Report.RetryBackoff > 0 {
		cfg.RetryBackoff = c.Report.RetryBackoff
	}
	return cfg
}

// LoggerConfig builds the logger configuration.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if c.Log.Level != "" {
		cfg.Level = logger.Level(c.Log.Level)
	}
	if c.Log.Format != "" {
		cfg.Format = logger.Format(c.Log.Format)
	}
	return cfg
}

// PubSubCredentials reads the service-account key file when configured.
func (c *Config) PubSubCredentials() ([]byte, error) {
	if c.PubSub.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.PubSub.CredentialsFile)
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeInvalidConfig, "reading pubsub credentials: "+err.Error())
	}
	return data, nil
}

// UsePubSub reports whether report tasks go through Pub/Sub.
func (c *Config) UsePubSub() bool {
	return c.PubSub.ProjectID != ""
}

// UseRedisLock reports whether the run lock is distributed.
func (c *Config) UseRedisLock() bool {
	return c.Redis.Addr != ""
}
