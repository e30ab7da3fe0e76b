package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Optionally read from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gp-data")

	// Ignore error if config file not found
	_ = v.ReadInConfig()

	var cfg Config

	// Server
	cfg.Server.Env = v.GetString("server_env")
	cfg.Server.MetricsAddr = v.GetString("metrics_addr")

	// MongoDB
	cfg.Mongo.URI = v.GetString("mongodb_uri")
	cfg.Mongo.Database = v.GetString("mongodb_database")
	cfg.Mongo.MaxPoolSize = uint64(v.GetInt("mongodb_max_pool_size"))
	cfg.Mongo.MinPoolSize = uint64(v.GetInt("mongodb_min_pool_size"))
	cfg.Mongo.ServerSelectionTimeout = time.Duration(v.GetInt("mongodb_server_selection_timeout_ms")) * time.Millisecond
	cfg.Mongo.OperationTimeout = time.Duration(v.GetInt("mongodb_operation_timeout_ms")) * time.Millisecond

	// Retention
	cfg.Retention.MessageRetentionDays = v.GetInt("message_retention_days")
	cfg.Retention.ArchivalEnabled = v.GetBool("enable_message_archival")

	// Redis
	cfg.Redis.Host = v.GetString("redis_host")
	cfg.Redis.Port = v.GetInt("redis_port")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")

	// MinIO
	cfg.MinIO.Enabled = v.GetBool("minio_enabled")
	cfg.MinIO.Endpoint = v.GetString("minio_endpoint")
	cfg.MinIO.AccessKey = v.GetString("minio_access_key")
	cfg.MinIO.SecretKey = v.GetString("minio_secret_key")
	cfg.MinIO.UseSSL = v.GetBool("minio_use_ssl")
	cfg.MinIO.Bucket = v.GetString("minio_bucket")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker_concurrency")
	cfg.Worker.CriticalWeight = v.GetInt("worker_critical_weight")
	cfg.Worker.DefaultWeight = v.GetInt("worker_default_weight")
	cfg.Worker.LowWeight = v.GetInt("worker_low_weight")
	cfg.Worker.StaleScanCron = v.GetString("worker_stale_scan_cron")
	cfg.Worker.SnapshotCron = v.GetString("worker_snapshot_cron")
	cfg.Worker.SchedulerEnabled = v.GetBool("worker_scheduler_enabled")

	// Follow-up
	cfg.FollowUp.StaleDays = v.GetInt("followup_stale_days")
	cfg.FollowUp.ScanLimit = v.GetInt("followup_scan_limit")
	cfg.FollowUp.Delay = time.Duration(v.GetInt("followup_delay_hours")) * time.Hour

	// Phone
	cfg.Phone.DefaultRegion = strings.ToUpper(v.GetString("phone_default_region"))

	// Sentry
	cfg.Sentry.DSN = v.GetString("sentry_dsn")
	cfg.Sentry.SampleRate = v.GetFloat64("sentry_sample_rate")
	cfg.Sentry.Environment = v.GetString("sentry_environment")
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Server.Env
	}

	// Logging
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")

	// Validate required fields
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_env", "development")
	v.SetDefault("metrics_addr", ":9090")

	// MongoDB defaults
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "gp-data-v4")
	v.SetDefault("mongodb_max_pool_size", 10)
	v.SetDefault("mongodb_min_pool_size", 1)
	v.SetDefault("mongodb_server_selection_timeout_ms", 5000)
	v.SetDefault("mongodb_operation_timeout_ms", 10000)

	// Retention defaults
	v.SetDefault("message_retention_days", 365)
	v.SetDefault("enable_message_archival", true)

	// Redis defaults
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// MinIO defaults
	v.SetDefault("minio_enabled", false)
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "gpdata")
	v.SetDefault("minio_secret_key", "gpdata123")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_bucket", "gp-data-archives")

	// Worker defaults
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("worker_critical_weight", 6)
	v.SetDefault("worker_default_weight", 3)
	v.SetDefault("worker_low_weight", 1)
	v.SetDefault("worker_stale_scan_cron", "0 * * * *")
	v.SetDefault("worker_snapshot_cron", "*/5 * * * *")
	v.SetDefault("worker_scheduler_enabled", true)

	// Follow-up defaults
	v.SetDefault("followup_stale_days", 3)
	v.SetDefault("followup_scan_limit", 100)
	v.SetDefault("followup_delay_hours", 24)

	// Phone defaults
	v.SetDefault("phone_default_region", "MX")

	// Sentry defaults
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("sentry_sample_rate", 1.0)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

func validate(cfg *Config) error {
	if cfg.Mongo.URI == "" {
		return fmt.Errorf("mongodb_uri is required")
	}
	if cfg.Mongo.Database == "" {
		return fmt.Errorf("mongodb_database is required")
	}
	if cfg.Mongo.MaxPoolSize == 0 {
		return fmt.Errorf("mongodb_max_pool_size must be positive")
	}
	if cfg.Mongo.MinPoolSize > cfg.Mongo.MaxPoolSize {
		return fmt.Errorf("mongodb_min_pool_size (%d) exceeds mongodb_max_pool_size (%d)",
			cfg.Mongo.MinPoolSize, cfg.Mongo.MaxPoolSize)
	}
	if cfg.Mongo.ServerSelectionTimeout <= 0 {
		return fmt.Errorf("mongodb_server_selection_timeout_ms must be positive")
	}
	if cfg.Retention.MessageRetentionDays < 0 {
		return fmt.Errorf("message_retention_days must not be negative")
	}
	if cfg.FollowUp.StaleDays <= 0 {
		return fmt.Errorf("followup_stale_days must be positive")
	}
	if cfg.MinIO.Enabled && cfg.MinIO.Bucket == "" {
		return fmt.Errorf("minio_bucket is required when minio is enabled")
	}
	return nil
}
