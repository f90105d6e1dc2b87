package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeoutSeconds is the default read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultShutdownTimeoutSeconds is the default shutdown timeout in seconds
	DefaultShutdownTimeoutSeconds = 30

	encryptionKeyBytes = 32
)

type Config struct {
	Debug       bool              `yaml:"debug"` // Application debug mode (controls log level and format)
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Dedup       DedupConfig       `yaml:"dedup"` // Optional: dispatch deduplication guard
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SchedulerConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`    // Default: 1m
	BatchSize       int           `yaml:"batch_size"`       // Max jobs claimed per tick (default: 100)
	WorkerCount     int           `yaml:"worker_count"`     // Parallel dispatches per tick (default: 4)
	StoreTimeout    time.Duration `yaml:"store_timeout"`    // Per-statement DB timeout (default: 5s)
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"` // Per-platform-call timeout (default: 30s)
}

type CredentialsConfig struct {
	EncryptionKey         string        `yaml:"encryption_key"`          // 64 hex chars (32 bytes); prefer CREDENTIALS_ENCRYPTION_KEY env
	ChangeChannel         string        `yaml:"change_channel"`          // Redis pub/sub channel for change events
	StoreTimeout          time.Duration `yaml:"store_timeout"`           // Per-lookup DB timeout (default: 5s)
	TenantScopedPlatforms []string      `yaml:"tenant_scoped_platforms"` // Platforms whose credentials are per-tenant
}

type DedupConfig struct {
	Enabled bool          `yaml:"enabled"` // Enable the Redis dispatch marker
	TTL     time.Duration `yaml:"ttl"`     // Marker lifetime (default: 24h)
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8075"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
}

// Validate checks if the server configuration is valid and sets defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = ":8075" // Default port
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	return nil
}

// EncryptionKeyBytes decodes the hex-encoded AES key.
func (c *CredentialsConfig) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credentials.encryption_key is not valid hex: %w", err)
	}
	if len(key) != encryptionKeyBytes {
		return nil, fmt.Errorf("credentials.encryption_key must decode to %d bytes, got %d", encryptionKeyBytes, len(key))
	}
	return key, nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive, got %v", c.Scheduler.TickInterval)
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive, got %d", c.Scheduler.BatchSize)
	}
	if c.Credentials.EncryptionKey == "" {
		return errors.New("credentials.encryption_key is required (set CREDENTIALS_ENCRYPTION_KEY)")
	}
	if _, err := c.Credentials.EncryptionKeyBytes(); err != nil {
		return err
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8075"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Minute
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Scheduler.WorkerCount == 0 {
		cfg.Scheduler.WorkerCount = 4
	}
	if cfg.Scheduler.StoreTimeout == 0 {
		cfg.Scheduler.StoreTimeout = 5 * time.Second
	}
	if cfg.Scheduler.DispatchTimeout == 0 {
		cfg.Scheduler.DispatchTimeout = 30 * time.Second
	}
	if cfg.Credentials.ChangeChannel == "" {
		cfg.Credentials.ChangeChannel = "credentials:changed"
	}
	if cfg.Credentials.StoreTimeout == 0 {
		cfg.Credentials.StoreTimeout = 5 * time.Second
	}
	if len(cfg.Credentials.TenantScopedPlatforms) == 0 {
		cfg.Credentials.TenantScopedPlatforms = []string{"wordpress", "twitter", "make"}
	}
	if cfg.Dedup.TTL == 0 {
		cfg.Dedup.TTL = 24 * time.Hour
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if key := os.Getenv("CREDENTIALS_ENCRYPTION_KEY"); key != "" {
		cfg.Credentials.EncryptionKey = key
	}
	// Parse APP_DEBUG environment variable
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Set defaults
	setDefaults(&cfg)

	// Override with environment variables if present
	overrideWithEnvVars(&cfg)

	// Set server defaults
	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}

	// Override server config with environment variable if present
	if enginePort := os.Getenv("ENGINE_PORT"); enginePort != "" {
		cfg.Server.Address = ":" + enginePort
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
