package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Retention RetentionConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Worker    WorkerConfig
	FollowUp  FollowUpConfig
	Phone     PhoneConfig
	Sentry    SentryConfig
	Log       LogConfig
}

// ServerConfig holds process-level configuration
type ServerConfig struct {
	Env         string `mapstructure:"env"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI                    string `mapstructure:"uri"`
	Database               string `mapstructure:"database"`
	MaxPoolSize            uint64 `mapstructure:"max_pool_size"`
	MinPoolSize            uint64 `mapstructure:"min_pool_size"`
	ServerSelectionTimeout time.Duration
	OperationTimeout       time.Duration
}

// RetentionConfig controls message expiry
type RetentionConfig struct {
	MessageRetentionDays int  `mapstructure:"message_retention_days"`
	ArchivalEnabled      bool `mapstructure:"enable_message_archival"`
}

// TTLSeconds returns the message TTL in seconds, or 0 when expiry is disabled
func (c RetentionConfig) TTLSeconds() int32 {
	if !c.ArchivalEnabled || c.MessageRetentionDays <= 0 {
		return 0
	}
	return int32(c.MessageRetentionDays * 24 * 60 * 60)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MinIOConfig holds object storage configuration for conversation archives
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	CriticalWeight   int    `mapstructure:"critical_weight"`
	DefaultWeight    int    `mapstructure:"default_weight"`
	LowWeight        int    `mapstructure:"low_weight"`
	StaleScanCron    string `mapstructure:"stale_scan_cron"`
	SnapshotCron     string `mapstructure:"snapshot_cron"`
	SchedulerEnabled bool   `mapstructure:"scheduler_enabled"`
}

// FollowUpConfig controls the stale-lead scan
type FollowUpConfig struct {
	StaleDays int           `mapstructure:"stale_days"`
	ScanLimit int           `mapstructure:"scan_limit"`
	Delay     time.Duration `mapstructure:"-"`
}

// PhoneConfig holds phone normalization configuration
type PhoneConfig struct {
	DefaultRegion string `mapstructure:"default_region"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IsDevelopment returns true if running in development mode
func (c Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c Config) IsProduction() bool {
	return c.Server.Env == "production"
}
