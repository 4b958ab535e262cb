package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/membership/pkg/observability"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Cache and lock backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Locks         LocksConfig         `yaml:"locks"`
	Audit         AuditConfig         `yaml:"audit"`
	Invitations   InvitationsConfig   `yaml:"invitations"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig selects and tunes the document store
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// IsSQL reports whether the store is database backed
func (s StoreConfig) IsSQL() bool {
	return s.Driver == DriverPostgres || s.Driver == DriverSQLite
}

// RedisConfig holds the shared redis connection used by the redis cache
// and lock backends
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig configures the permission cache
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// LocksConfig configures the single-writer locks
type LocksConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	MaxWait time.Duration `yaml:"max_wait"`
}

// AuditConfig configures where audit entries go. An empty FileDir disables
// the file sink.
type AuditConfig struct {
	FileDir  string `yaml:"file_dir"`
	MaxSize  int64  `yaml:"max_size"`
	MaxFiles int    `yaml:"max_files"`
	Database bool   `yaml:"database"`
	Async    bool   `yaml:"async"`
}

// InvitationsConfig holds invitation lifetimes and the expiry sweep
type InvitationsConfig struct {
	DefaultExpiry time.Duration `yaml:"default_expiry"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	AdminPort       string        `yaml:"admin_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string                   `yaml:"log_level"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:          DriverMemory,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{},
		Cache: CacheConfig{
			Backend: BackendMemory,
			Size:    10000,
			TTL:     5 * time.Minute,
		},
		Locks: LocksConfig{
			Backend: BackendMemory,
			TTL:     30 * time.Second,
			MaxWait: 10 * time.Second,
		},
		Audit: AuditConfig{
			MaxSize:  100 * 1024 * 1024,
			MaxFiles: 10,
		},
		Invitations: InvitationsConfig{
			DefaultExpiry: 72 * time.Hour,
			SweepSchedule: "*/15 * * * *",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			AdminPort:       "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "membershipd",
				ServiceVersion: "1.0.0",
				Insecure:       true,
				SampleRatio:    1,
			},
		},
	}
}

// LoadConfig loads configuration from the file named by
// MEMBERSHIP_CONFIG_FILE, if any, and then from environment variables
func LoadConfig() (*Config, error) {
	return Load(ConfigFileFromEnv())
}

// ConfigFileFromEnv returns the config file named by MEMBERSHIP_CONFIG_FILE
func ConfigFileFromEnv() string {
	return os.Getenv("MEMBERSHIP_CONFIG_FILE")
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides every setting that has its environment variable set
func (c *Config) applyEnv() {
	c.Store.Driver = getEnv("MEMBERSHIP_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("MEMBERSHIP_STORE_DSN", c.Store.DSN)
	c.Store.MaxOpenConns = getEnvInt("MEMBERSHIP_STORE_MAX_OPEN_CONNS", c.Store.MaxOpenConns)
	c.Store.MaxIdleConns = getEnvInt("MEMBERSHIP_STORE_MAX_IDLE_CONNS", c.Store.MaxIdleConns)
	c.Store.ConnMaxLifetime = getEnvDuration("MEMBERSHIP_STORE_CONN_MAX_LIFETIME", c.Store.ConnMaxLifetime)

	c.Redis.Addr = getEnv("MEMBERSHIP_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("MEMBERSHIP_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("MEMBERSHIP_REDIS_DB", c.Redis.DB)

	c.Cache.Backend = getEnv("MEMBERSHIP_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Size = getEnvInt("MEMBERSHIP_CACHE_SIZE", c.Cache.Size)
	c.Cache.TTL = getEnvDuration("MEMBERSHIP_CACHE_TTL", c.Cache.TTL)

	c.Locks.Backend = getEnv("MEMBERSHIP_LOCKS_BACKEND", c.Locks.Backend)
	c.Locks.TTL = getEnvDuration("MEMBERSHIP_LOCKS_TTL", c.Locks.TTL)
	c.Locks.MaxWait = getEnvDuration("MEMBERSHIP_LOCKS_MAX_WAIT", c.Locks.MaxWait)

	c.Audit.FileDir = getEnv("MEMBERSHIP_AUDIT_FILE_DIR", c.Audit.FileDir)
	c.Audit.MaxSize = getEnvInt64("MEMBERSHIP_AUDIT_MAX_SIZE", c.Audit.MaxSize)
	c.Audit.MaxFiles = getEnvInt("MEMBERSHIP_AUDIT_MAX_FILES", c.Audit.MaxFiles)
	c.Audit.Database = getEnvBool("MEMBERSHIP_AUDIT_DATABASE", c.Audit.Database)
	c.Audit.Async = getEnvBool("MEMBERSHIP_AUDIT_ASYNC", c.Audit.Async)

	c.Invitations.DefaultExpiry = getEnvDuration("MEMBERSHIP_INVITATION_EXPIRY", c.Invitations.DefaultExpiry)
	c.Invitations.SweepSchedule = getEnv("MEMBERSHIP_INVITATION_SWEEP_SCHEDULE", c.Invitations.SweepSchedule)

	c.Server.Host = getEnv("MEMBERSHIP_HOST", c.Server.Host)
	c.Server.AdminPort = getEnv("MEMBERSHIP_ADMIN_PORT", c.Server.AdminPort)
	c.Server.ReadTimeout = getEnvDuration("MEMBERSHIP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("MEMBERSHIP_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("MEMBERSHIP_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	o := &c.Observability
	o.LogLevel = getEnv("MEMBERSHIP_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("MEMBERSHIP_METRICS_ENABLED", o.MetricsEnabled)
	o.OTel.Enabled = getEnvBool("MEMBERSHIP_OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("MEMBERSHIP_OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("MEMBERSHIP_OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.ServiceVersion = getEnv("MEMBERSHIP_OTEL_SERVICE_VERSION", o.OTel.ServiceVersion)
	o.OTel.Insecure = getEnvBool("MEMBERSHIP_OTEL_INSECURE", o.OTel.Insecure)
	o.OTel.SampleRatio = getEnvFloat("MEMBERSHIP_OTEL_SAMPLE_RATIO", o.OTel.SampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be memory, postgres, or sqlite3)", c.Store.Driver)
	}

	switch c.Cache.Backend {
	case BackendNone, BackendRedis:
	case BackendMemory:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive for the memory cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be none, memory, or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend != BackendNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	switch c.Locks.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Locks.TTL <= 0 {
			return fmt.Errorf("lock TTL must be positive for redis locks")
		}
	default:
		return fmt.Errorf("invalid lock backend: %s (must be memory or redis)", c.Locks.Backend)
	}

	if (c.Cache.Backend == BackendRedis || c.Locks.Backend == BackendRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for redis backends")
	}

	if c.Audit.Database && c.Store.Driver != DriverPostgres {
		return fmt.Errorf("the audit database sink requires the postgres store driver")
	}

	if c.Invitations.DefaultExpiry <= 0 {
		return fmt.Errorf("invitation default expiry must be positive")
	}
	if c.Invitations.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Invitations.SweepSchedule); err != nil {
			return fmt.Errorf("invalid invitation sweep schedule: %w", err)
		}
	}

	if c.Server.AdminPort == "" {
		return fmt.Errorf("admin port is required")
	}

	if _, err := observability.ParseLogLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if otel := c.Observability.OTel; otel.Enabled {
		if otel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if otel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if otel.SampleRatio < 0 || otel.SampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() observability.LogLevel {
	level, _ := observability.ParseLogLevel(c.Observability.LogLevel)
	return level
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
